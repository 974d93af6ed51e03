package orm

// IRecord 模型实例的字段访问抽象。
//
// 字段名既可以是列名，也可以是关联属性名。
type IRecord interface {
	// Model 返回实例所属模型在注册表中的全名
	Model() string
	GetField(name string) (any, bool)
	SetField(name string, value any) error
}

// IMetadataProvider 提供模型与关联的静态元数据。
type IMetadataProvider interface {
	// Lookup 按注册名精确查找模型
	Lookup(name string) (*ModelMeta, bool)

	RelationAnnotation(model, property string) (RelationAnnotation, bool)
	// AutoSelect 未声明时默认开启
	AutoSelect(model, property string) bool
	// RelationProperties 按声明顺序返回模型的关联属性
	RelationProperties(model string) []string

	FieldNames(model string) ([]string, error)
	TableName(model string) (string, error)
	PrimaryKey(model string) (string, error)
	Namespace(model string) string
}

// IModelFactory 按模型名构造实例。
type IModelFactory interface {
	NewInstance(model string, fields map[string]any) (IRecord, error)
}
