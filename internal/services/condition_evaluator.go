package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/donkeyideas/Construction-sub000/internal/models"
	"github.com/donkeyideas/Construction-sub000/pkg/logger"
)

// EvaluateConditions 纯函数：按AND组合评估规则的条件列表
// 空条件列表总是匹配；单个条件评估出错时按不匹配处理（记录日志，不抛出）
func EvaluateConditions(conditions []models.AutomationCondition, snapshot map[string]interface{}) bool {
	for _, cond := range conditions {
		if !evaluateCondition(cond, snapshot) {
			// AND短路：条件是纯读取，提前返回无副作用
			return false
		}
	}
	return true
}

// evaluateCondition 评估单个条件
func evaluateCondition(cond models.AutomationCondition, snapshot map[string]interface{}) bool {
	value := ExtractField(cond.Field, snapshot)

	// 字段缺失按null处理：只有is_empty和not_equals(非null)能有意义地匹配
	if value == nil {
		switch cond.Operator {
		case models.OperatorIsEmpty:
			return true
		case models.OperatorNotEquals:
			return cond.Value != nil
		default:
			return false
		}
	}

	switch cond.Operator {
	case models.OperatorEquals:
		return looseEquals(value, cond.Value)

	case models.OperatorNotEquals:
		return !looseEquals(value, cond.Value)

	case models.OperatorContains:
		return evalContains(value, cond.Value)

	case models.OperatorGreaterThan:
		result, err := compareOrdered(value, cond.Value)
		if err != nil {
			logEvalError(cond, err)
			return false
		}
		return result > 0

	case models.OperatorLessThan:
		result, err := compareOrdered(value, cond.Value)
		if err != nil {
			logEvalError(cond, err)
			return false
		}
		return result < 0

	case models.OperatorIn:
		list, ok := cond.Value.([]interface{})
		if !ok {
			logEvalError(cond, fmt.Errorf("in操作符要求列表值"))
			return false
		}
		for _, item := range list {
			if looseEquals(value, item) {
				return true
			}
		}
		return false

	case models.OperatorIsEmpty:
		return isEmptyValue(value)

	case models.OperatorIsNotEmpty:
		return !isEmptyValue(value)

	default:
		logEvalError(cond, fmt.Errorf("未知操作符"))
		return false
	}
}

// looseEquals 类型感知的结构相等：双方都能转数字时按数值比较，否则按字符串比较
// JSON反序列化后数字统一为float64，"3"与3需要归一化
func looseEquals(v, c interface{}) bool {
	vf, vok := toFloat(v)
	cf, cok := toFloat(c)
	if vok && cok {
		return vf == cf
	}
	return toString(v) == toString(c)
}

// evalContains 字符串包含子串，或列表包含元素
func evalContains(v, c interface{}) bool {
	switch value := v.(type) {
	case string:
		return strings.Contains(value, toString(c))
	case []interface{}:
		for _, item := range value {
			if looseEquals(item, c) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// compareOrdered 有序比较：优先按数值，其次按日期；都不行返回评估错误
// 返回值：-1/0/1
func compareOrdered(v, c interface{}) (int, error) {
	if vf, vok := toFloat(v); vok {
		if cf, cok := toFloat(c); cok {
			switch {
			case vf < cf:
				return -1, nil
			case vf > cf:
				return 1, nil
			default:
				return 0, nil
			}
		}
	}

	vt, verr := toTime(v)
	ct, cerr := toTime(c)
	if verr == nil && cerr == nil {
		switch {
		case vt.Before(ct):
			return -1, nil
		case vt.After(ct):
			return 1, nil
		default:
			return 0, nil
		}
	}

	return 0, fmt.Errorf("操作数既不是数值也不是日期: %v / %v", v, c)
}

// toFloat 尝试转为float64
func toFloat(v interface{}) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return value, true
	case float32:
		return float64(value), true
	case int:
		return float64(value), true
	case int64:
		return float64(value), true
	case uint:
		return float64(value), true
	case string:
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// toTime 尝试按日期解析，支持 2006-01-02 和 RFC3339
func toTime(v interface{}) (time.Time, error) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("非字符串无法按日期解析")
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// toString 统一字符串化
func toString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// isEmptyValue null、空字符串、空列表视为空
func isEmptyValue(v interface{}) bool {
	switch value := v.(type) {
	case nil:
		return true
	case string:
		return value == ""
	case []interface{}:
		return len(value) == 0
	case map[string]interface{}:
		return len(value) == 0
	default:
		return false
	}
}

// logEvalError 条件评估错误只记录，不中断调度
func logEvalError(cond models.AutomationCondition, err error) {
	logger.GetLogger().Warnf("条件评估失败 field=%s operator=%s: %v", cond.Field, cond.Operator, err)
}
