package pipeline

import "encoding/json"

// SanitizeMetadata 把任意 JSON 解码得到的元数据映射净化为向量索引可接受的
// 形态：值只允许是标量（string、number、bool、null）或纯字符串列表。
// 嵌套映射与含非字符串元素的列表会被序列化成 JSON 字符串。
// 幂等：sanitize(sanitize(x)) == sanitize(x)。
func SanitizeMetadata(metadata map[string]interface{}) map[string]interface{} {
	if metadata == nil {
		return nil
	}
	out := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil, string, bool, float64, float32, int, int32, int64, uint, uint32, uint64:
		return val
	case []string:
		return val
	case []interface{}:
		strs := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return mustJSONString(val)
			}
			strs = append(strs, s)
		}
		return strs
	default:
		// 嵌套映射以及其他复杂类型统一落成 JSON 字符串
		return mustJSONString(val)
	}
}

func mustJSONString(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		// 输入总是来自 JSON 解码，正常情况下不可能序列化失败
		return ""
	}
	return string(b)
}
