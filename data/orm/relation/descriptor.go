// Package relation 将模型上声明的一对一、一对多、多对多关联加载为内存对象图。
//
// 流程（每个关联属性独立执行）：
//
//	Resolver  注解 + 属主模型 -> Descriptor（按 (owner, property, annotation) 缓存）
//	Planner   Descriptor + 属主键值 -> Plan（不做 I/O）
//	Assembler 执行 Plan，拆分别名列，构造实例并一次性赋值给属主
//
// 多对多关联只发起一次 JOIN 查询：中间表与右表的每个字段都以 <table>_<field> 形式取别名，
// 结果行按别名拆回两组字段，分别构造中间模型与关联模型实例。
package relation

import (
	"fmt"

	"relgraph/data/orm"
)

// Descriptor 一个关联属性解析后的不可变形态。
type Descriptor struct {
	Kind orm.RelationKind

	OwnerModel   string
	Property     string
	RelatedModel string

	LocalKey  string // 属主侧键
	RemoteKey string // 关联模型侧键

	// 仅多对多
	MiddleModel     string
	MiddleLocalKey  string // 中间表中与 LocalKey 匹配的列
	MiddleRemoteKey string // 中间表中与 RemoteKey 匹配的列
	InverseProperty string // 接收关联模型实例的属性
}

func (d Descriptor) String() string {
	if d.Kind == orm.ManyToMany {
		return fmt.Sprintf("%s.%s %s %s via %s(%s->%s, %s->%s.%s) into %s",
			d.OwnerModel, d.Property, d.Kind, d.RelatedModel, d.MiddleModel,
			d.LocalKey, d.MiddleLocalKey, d.MiddleRemoteKey, d.RelatedModel, d.RemoteKey, d.InverseProperty)
	}
	return fmt.Sprintf("%s.%s %s %s(%s -> %s)",
		d.OwnerModel, d.Property, d.Kind, d.RelatedModel, d.LocalKey, d.RemoteKey)
}
