package orm

import "github.com/go-openapi/inflect"

// TableNameFor 约定表名：snake_case 复数，例如 UserRole -> user_roles
func TableNameFor(model string) string {
	return inflect.Pluralize(inflect.Underscore(model))
}

// ForeignKeyFor 约定外键名：<snake(model)>_<pk>，例如 (User, id) -> user_id
func ForeignKeyFor(model, primaryKey string) string {
	return inflect.Underscore(model) + "_" + primaryKey
}

// PropertyName 约定属性名：Go 字段名的 snake_case 形式
func PropertyName(goName string) string {
	return inflect.Underscore(goName)
}
