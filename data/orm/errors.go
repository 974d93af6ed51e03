package orm

import "errors"

var (
	// ErrModelNotRegistered 表示模型未在注册表中登记。
	ErrModelNotRegistered = errors.New("orm: model not registered")
	// ErrDuplicateModel 表示同名模型重复注册。
	ErrDuplicateModel = errors.New("orm: duplicate model")
	// ErrFieldNotFound 表示字段或关联属性不存在。
	ErrFieldNotFound = errors.New("orm: field not found")
	// ErrFieldType 表示赋值类型与字段类型不兼容。
	ErrFieldType = errors.New("orm: incompatible field type")
)
