package services

import (
	"testing"

	"github.com/donkeyideas/Construction-sub000/internal/models"
)

// 构造一个典型的工单快照
func ticketSnapshot() map[string]interface{} {
	return map[string]interface{}{
		"status":   "open",
		"priority": "high",
		"amount":   float64(15000),
		"title":    "三层混凝土浇筑质量问题",
		"tags":     []interface{}{"quality", "concrete"},
		"due_date": "2026-09-01",
		"location": map[string]interface{}{
			"city": "上海",
			"site": "A区",
		},
		"crew": []interface{}{
			map[string]interface{}{"trade": "electrician"},
			map[string]interface{}{"trade": "plumber"},
		},
		"assigned_to": nil,
	}
}

func cond(field, operator string, value interface{}) models.AutomationCondition {
	return models.AutomationCondition{Field: field, Operator: operator, Value: value}
}

// 空条件列表总是匹配
func TestEvaluateConditionsEmpty(t *testing.T) {
	if !EvaluateConditions(nil, ticketSnapshot()) {
		t.Error("空条件列表应该总是匹配")
	}
	if !EvaluateConditions([]models.AutomationCondition{}, ticketSnapshot()) {
		t.Error("空条件列表应该总是匹配")
	}
}

// 多条件按AND组合
func TestEvaluateConditionsAnd(t *testing.T) {
	snapshot := ticketSnapshot()

	conditions := []models.AutomationCondition{
		cond("status", models.OperatorEquals, "open"),
		cond("priority", models.OperatorEquals, "high"),
	}
	if !EvaluateConditions(conditions, snapshot) {
		t.Error("所有条件满足时应该匹配")
	}

	conditions = append(conditions, cond("status", models.OperatorEquals, "closed"))
	if EvaluateConditions(conditions, snapshot) {
		t.Error("任一条件不满足时不应该匹配")
	}
}

// 评估是纯函数：同一快照重复评估结果一致，快照不被修改
func TestEvaluateConditionsIdempotent(t *testing.T) {
	snapshot := ticketSnapshot()
	conditions := []models.AutomationCondition{
		cond("priority", models.OperatorEquals, "high"),
		cond("amount", models.OperatorGreaterThan, float64(10000)),
	}

	first := EvaluateConditions(conditions, snapshot)
	for i := 0; i < 10; i++ {
		if EvaluateConditions(conditions, snapshot) != first {
			t.Fatal("重复评估的结果应该一致")
		}
	}
	if snapshot["priority"] != "high" {
		t.Error("评估不应修改快照")
	}
}

func TestOperatorEquals(t *testing.T) {
	snapshot := ticketSnapshot()

	tests := []struct {
		name     string
		cond     models.AutomationCondition
		expected bool
	}{
		{"字符串相等", cond("status", models.OperatorEquals, "open"), true},
		{"字符串不等", cond("status", models.OperatorEquals, "closed"), false},
		{"数值相等", cond("amount", models.OperatorEquals, float64(15000)), true},
		{"数字字符串与数字按数值比较", cond("amount", models.OperatorEquals, "15000"), true},
		{"not_equals", cond("status", models.OperatorNotEquals, "closed"), true},
		{"嵌套字段", cond("location.city", models.OperatorEquals, "上海"), true},
		{"数组索引字段", cond("crew[0].trade", models.OperatorEquals, "electrician"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateConditions([]models.AutomationCondition{tt.cond}, snapshot)
			if got != tt.expected {
				t.Errorf("期望 %v，实际 %v", tt.expected, got)
			}
		})
	}
}

func TestOperatorContains(t *testing.T) {
	snapshot := ticketSnapshot()

	tests := []struct {
		name     string
		cond     models.AutomationCondition
		expected bool
	}{
		{"字符串包含子串", cond("title", models.OperatorContains, "混凝土"), true},
		{"字符串不包含", cond("title", models.OperatorContains, "钢筋"), false},
		{"列表包含元素", cond("tags", models.OperatorContains, "quality"), true},
		{"列表不包含", cond("tags", models.OperatorContains, "safety"), false},
		{"数值字段不支持contains", cond("amount", models.OperatorContains, "150"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateConditions([]models.AutomationCondition{tt.cond}, snapshot)
			if got != tt.expected {
				t.Errorf("期望 %v，实际 %v", tt.expected, got)
			}
		})
	}
}

func TestOperatorOrdered(t *testing.T) {
	snapshot := ticketSnapshot()

	tests := []struct {
		name     string
		cond     models.AutomationCondition
		expected bool
	}{
		{"数值大于", cond("amount", models.OperatorGreaterThan, float64(10000)), true},
		{"数值不大于", cond("amount", models.OperatorGreaterThan, float64(20000)), false},
		{"数值小于", cond("amount", models.OperatorLessThan, float64(20000)), true},
		{"日期大于", cond("due_date", models.OperatorGreaterThan, "2026-08-01"), true},
		{"日期小于", cond("due_date", models.OperatorLessThan, "2026-08-01"), false},
		// 操作数无法比较时按评估错误处理，结果是不匹配
		{"不可比较的值", cond("status", models.OperatorGreaterThan, "high"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateConditions([]models.AutomationCondition{tt.cond}, snapshot)
			if got != tt.expected {
				t.Errorf("期望 %v，实际 %v", tt.expected, got)
			}
		})
	}
}

func TestOperatorIn(t *testing.T) {
	snapshot := ticketSnapshot()

	in := cond("status", models.OperatorIn, []interface{}{"open", "pending"})
	if !EvaluateConditions([]models.AutomationCondition{in}, snapshot) {
		t.Error("值在列表中应该匹配")
	}

	notIn := cond("status", models.OperatorIn, []interface{}{"closed", "archived"})
	if EvaluateConditions([]models.AutomationCondition{notIn}, snapshot) {
		t.Error("值不在列表中不应该匹配")
	}

	// in操作符的比较值不是列表时按评估错误处理
	badValue := cond("status", models.OperatorIn, "open")
	if EvaluateConditions([]models.AutomationCondition{badValue}, snapshot) {
		t.Error("非列表比较值应该按不匹配处理")
	}
}

func TestOperatorEmpty(t *testing.T) {
	snapshot := map[string]interface{}{
		"name":  "项目A",
		"notes": "",
		"tags":  []interface{}{},
	}

	tests := []struct {
		name     string
		cond     models.AutomationCondition
		expected bool
	}{
		{"空字符串是空", cond("notes", models.OperatorIsEmpty, nil), true},
		{"空列表是空", cond("tags", models.OperatorIsEmpty, nil), true},
		{"非空字符串不是空", cond("name", models.OperatorIsEmpty, nil), false},
		{"is_not_empty", cond("name", models.OperatorIsNotEmpty, nil), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateConditions([]models.AutomationCondition{tt.cond}, snapshot)
			if got != tt.expected {
				t.Errorf("期望 %v，实际 %v", tt.expected, got)
			}
		})
	}
}

// 字段缺失按null处理：只有is_empty和not_equals(非null)能匹配
func TestMissingField(t *testing.T) {
	snapshot := ticketSnapshot()

	tests := []struct {
		name     string
		cond     models.AutomationCondition
		expected bool
	}{
		{"缺失字段is_empty匹配", cond("nonexistent", models.OperatorIsEmpty, nil), true},
		{"显式null字段is_empty匹配", cond("assigned_to", models.OperatorIsEmpty, nil), true},
		{"缺失字段not_equals非null值匹配", cond("nonexistent", models.OperatorNotEquals, "x"), true},
		{"缺失字段not_equals null不匹配", cond("nonexistent", models.OperatorNotEquals, nil), false},
		{"缺失字段equals不匹配", cond("nonexistent", models.OperatorEquals, "x"), false},
		{"缺失字段greater_than不匹配", cond("nonexistent", models.OperatorGreaterThan, float64(1)), false},
		{"缺失字段is_not_empty不匹配", cond("nonexistent", models.OperatorIsNotEmpty, nil), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateConditions([]models.AutomationCondition{tt.cond}, snapshot)
			if got != tt.expected {
				t.Errorf("期望 %v，实际 %v", tt.expected, got)
			}
		})
	}
}
