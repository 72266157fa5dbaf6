package services

import (
	"strconv"
	"strings"
)

// ExtractField 从实体快照中提取指定路径的字段值
// 快照是反序列化后的JSON（map/slice/标量），支持的路径格式：
// - "status" - 简单字段
// - "location.city" - 嵌套字段
// - "crew[0].trade" - 数组索引
// 路径不存在时返回nil（视为字段缺失，不报错）
func ExtractField(path string, snapshot map[string]interface{}) interface{} {
	if path == "" || snapshot == nil {
		return nil
	}

	var current interface{} = snapshot

	for _, segment := range strings.Split(path, ".") {
		field, index, hasIndex := parseSegment(segment)

		// 字段访问
		if field != "" {
			m, ok := current.(map[string]interface{})
			if !ok {
				return nil
			}
			current, ok = m[field]
			if !ok {
				return nil
			}
		}

		// 数组索引访问
		if hasIndex {
			arr, ok := current.([]interface{})
			if !ok || index < 0 || index >= len(arr) {
				return nil
			}
			current = arr[index]
		}

		if current == nil {
			return nil
		}
	}

	return current
}

// parseSegment 解析单个路径片段，如 "crew[0]" -> ("crew", 0, true)
func parseSegment(segment string) (field string, index int, hasIndex bool) {
	open := strings.IndexByte(segment, '[')
	if open < 0 || !strings.HasSuffix(segment, "]") {
		return segment, 0, false
	}

	idx, err := strconv.Atoi(segment[open+1 : len(segment)-1])
	if err != nil {
		return segment, 0, false
	}
	return segment[:open], idx, true
}
