package sql

import "strings"

// IsSafeIdentifier 判断标识符是否为“安全的数据库标识符”。
//
// 允许形式：
//   - 单一标识符：foo, bar_1
//   - 带点的限定名：table.column
//
// 规则（按段）：
//   - 每段不能为空；
//   - 首字符必须是字母或下划线 [A-Za-z_]；
//   - 后续字符必须是字母、数字或下划线 [A-Za-z0-9_]。
//
// 只做 ASCII 校验，足以拒绝空格、分号、引号等注入片段。
func IsSafeIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for _, part := range strings.Split(name, ".") {
		if part == "" {
			return false
		}
		for i := 0; i < len(part); i++ {
			ch := part[i]
			letter := (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
			if i == 0 && !letter {
				return false
			}
			if i > 0 && !letter && !(ch >= '0' && ch <= '9') {
				return false
			}
		}
	}
	return true
}

// comparison operators accepted by Join / WhereOp
var allowedOperators = map[string]bool{
	"=":    true,
	"<>":   true,
	"!=":   true,
	"<":    true,
	"<=":   true,
	">":    true,
	">=":   true,
	"LIKE": true,
}

func isAllowedOperator(op string) bool {
	return allowedOperators[strings.ToUpper(strings.TrimSpace(op))]
}
