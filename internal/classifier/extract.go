package classifier

import "encoding/json"

// ExtractJSONObject 返回回复中第一个括号配平且合法的 JSON 对象，
// 允许前后有说明文字或 ``` 代码块
func ExtractJSONObject(reply string) (string, bool) {
	for start := 0; start < len(reply); start++ {
		if reply[start] != '{' {
			continue
		}
		end, ok := matchObject(reply, start)
		if !ok {
			continue
		}
		if candidate := reply[start : end+1]; json.Valid([]byte(candidate)) {
			return candidate, true
		}
	}
	return "", false
}

// matchObject 从 start 处的 '{' 开始找到配平的 '}'，跳过字符串字面量
func matchObject(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
