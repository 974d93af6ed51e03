package orm

import (
	"fmt"
	"strings"
)

// RelationKind 表示关联类型（封闭枚举）。
type RelationKind int

const (
	OneToOne RelationKind = iota + 1
	OneToMany
	ManyToMany
)

func (k RelationKind) String() string {
	switch k {
	case OneToOne:
		return "one_to_one"
	case OneToMany:
		return "one_to_many"
	case ManyToMany:
		return "many_to_many"
	default:
		return fmt.Sprintf("relation_kind(%d)", int(k))
	}
}

// Valid 是否为已知关联类型
func (k RelationKind) Valid() bool {
	return k >= OneToOne && k <= ManyToMany
}

// IsCollection 关联属性是否为集合
func (k RelationKind) IsCollection() bool {
	return k == OneToMany || k == ManyToMany
}

// ParseRelationKind 解析标签中的关联类型名称。
func ParseRelationKind(s string) (RelationKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "one_to_one", "has_one":
		return OneToOne, nil
	case "one_to_many", "has_many":
		return OneToMany, nil
	case "many_to_many":
		return ManyToMany, nil
	default:
		return 0, fmt.Errorf("orm: unknown relation kind %q", s)
	}
}

// RelationAnnotation 描述一个关联属性上声明的原始元数据。
//
// 未填写的键字段由解析器按约定推断：
//   - Left：属主主键；
//   - Right：一对一/一对多为 <属主>_<主键>，多对多为关联模型主键；
//   - MiddleLeft / MiddleRight：<属主>_<主键> / <关联模型>_<主键>。
type RelationAnnotation struct {
	Kind  RelationKind
	Model string // 关联（右侧）模型名，可为短名或带命名空间的全名

	Left  string // 属主侧键
	Right string // 关联模型侧键

	// 仅多对多
	Middle      string // 中间模型名
	MiddleLeft  string // 中间表中指向属主的键
	MiddleRight string // 中间表中指向关联模型的键
	RightMany   string // 接收关联模型实例的反向属性
}

// FieldMeta 描述字段元信息。
type FieldMeta struct {
	Name          string // 列名
	GoName        string // 结构体字段名，map 模型为空
	PrimaryKey    bool
	AutoIncrement bool
}

// RelationMeta 描述模型上的一个关联属性。
type RelationMeta struct {
	Property   string // snake_case 属性名
	GoName     string
	Annotation RelationAnnotation
	// NoAutoSelect 为 true 时初始化不触碰该属性（默认自动加载）
	NoAutoSelect bool
}

// ModelMeta 描述模型级别元信息。注册后只读。
type ModelMeta struct {
	Name       string // 短名，例如 User
	Namespace  string
	Table      string
	PrimaryKey string
	Fields     []FieldMeta
	Relations  []RelationMeta
}

// QualifiedName 返回注册表中的全名：<namespace>.<name>，无命名空间时为短名。
func (m *ModelMeta) QualifiedName() string {
	return qualify(m.Namespace, m.Name)
}

// FieldNames 按声明顺序返回列名。
func (m *ModelMeta) FieldNames() []string {
	names := make([]string, len(m.Fields))
	for i, f := range m.Fields {
		names[i] = f.Name
	}
	return names
}

// HasField 判断列是否存在。
func (m *ModelMeta) HasField(name string) bool {
	for _, f := range m.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Relation 按属性名（snake_case 或 Go 字段名）查找关联。
func (m *ModelMeta) Relation(property string) (RelationMeta, bool) {
	for _, r := range m.Relations {
		if r.Property == property || (r.GoName != "" && r.GoName == property) {
			return r, true
		}
	}
	return RelationMeta{}, false
}

func qualify(namespace, name string) string {
	if namespace == "" {
		return name
	}
	return namespace + "." + name
}
