package relation

import (
	"context"

	dbsql "relgraph/data/db/sql"
	"relgraph/data/orm"
)

// Result 单个属性的装配结果
type Result struct {
	Rows    int  // 查询返回的行数
	Skipped bool // 属主键为空，未发起查询
}

// Assembler 执行查询计划并将结果行装配为对象图。
//
// 属性在完整装配后才赋值给属主；任何失败都不会留下部分结果。
type Assembler struct {
	factory orm.IModelFactory
	sql     dbsql.ISql
}

// NewAssembler 创建装配器
func NewAssembler(factory orm.IModelFactory, client dbsql.ISql) *Assembler {
	return &Assembler{factory: factory, sql: client}
}

// Assemble 执行计划并写入属主属性。
//
// 查询或物化失败返回 *QueryExecutionError；属性赋值失败（字段类型不兼容）返回 *ConfigurationError。
func (a *Assembler) Assemble(ctx context.Context, plan *Plan, owner orm.IRecord) (Result, error) {
	d := plan.Descriptor
	if plan.executed {
		return Result{}, planErr(d, "plan has already been executed", nil)
	}
	plan.executed = true

	switch d.Kind {
	case orm.OneToOne:
		return a.assembleOne(ctx, plan, owner)
	case orm.OneToMany:
		return a.assembleMany(ctx, plan, owner)
	case orm.ManyToMany:
		return a.assembleManyToMany(ctx, plan, owner)
	default:
		return Result{}, planErr(d, "unsupported relation kind "+d.Kind.String(), nil)
	}
}

func (a *Assembler) assembleOne(ctx context.Context, plan *Plan, owner orm.IRecord) (Result, error) {
	d := plan.Descriptor
	res := Result{Skipped: plan.Skip}

	var fields map[string]any
	if !plan.Skip {
		row, err := plan.query.One(ctx)
		if err != nil {
			return res, a.execErr(plan, err)
		}
		if row != nil {
			fields = row
			res.Rows = 1
		}
	}

	// 无匹配行时使用默认实例
	inst, err := a.factory.NewInstance(d.RelatedModel, fields)
	if err != nil {
		return res, a.execErr(plan, err)
	}
	if err := owner.SetField(d.Property, inst); err != nil {
		return res, configErr(d, "assign property", err)
	}
	return res, nil
}

func (a *Assembler) assembleMany(ctx context.Context, plan *Plan, owner orm.IRecord) (Result, error) {
	d := plan.Descriptor
	res := Result{Skipped: plan.Skip}

	coll := orm.NewCollection(d.RelatedModel)
	if !plan.Skip {
		rows, err := plan.query.All(ctx)
		if err != nil {
			return res, a.execErr(plan, err)
		}
		res.Rows = len(rows)
		for _, row := range rows {
			inst, err := a.factory.NewInstance(d.RelatedModel, row)
			if err != nil {
				return res, a.execErr(plan, err)
			}
			coll.Append(inst)
		}
	}

	if err := owner.SetField(d.Property, coll); err != nil {
		return res, configErr(d, "assign property", err)
	}
	return res, nil
}

// assembleManyToMany 每行拆分为中间模型与关联模型各一个实例，不去重
func (a *Assembler) assembleManyToMany(ctx context.Context, plan *Plan, owner orm.IRecord) (Result, error) {
	d := plan.Descriptor
	res := Result{Skipped: plan.Skip}

	middle := orm.NewCollection(d.MiddleModel)
	right := orm.NewCollection(d.RelatedModel)
	if !plan.Skip {
		rows, err := plan.query.All(ctx)
		if err != nil {
			return res, a.execErr(plan, err)
		}
		res.Rows = len(rows)
		for _, row := range rows {
			m, err := a.factory.NewInstance(d.MiddleModel, plan.Middle.Demux(row))
			if err != nil {
				return res, a.execErr(plan, err)
			}
			r, err := a.factory.NewInstance(d.RelatedModel, plan.Right.Demux(row))
			if err != nil {
				return res, a.execErr(plan, err)
			}
			middle.Append(m)
			right.Append(r)
		}
	}

	prev, hadPrev := owner.GetField(d.Property)
	if err := owner.SetField(d.Property, middle); err != nil {
		return res, configErr(d, "assign property", err)
	}
	if err := owner.SetField(d.InverseProperty, right); err != nil {
		restore(owner, d.Property, prev, hadPrev)
		return res, configErr(d, "assign inverse property "+d.InverseProperty, err)
	}
	return res, nil
}

// restore 撤销已写入的属性，保证两个集合要么都赋值要么都不赋值
func restore(owner orm.IRecord, property string, prev any, hadPrev bool) {
	if !hadPrev {
		if del, ok := owner.(interface{ DeleteField(name string) }); ok {
			del.DeleteField(property)
			return
		}
	}
	_ = owner.SetField(property, prev)
}

func (a *Assembler) execErr(plan *Plan, err error) error {
	query, _ := plan.SQL()
	return &QueryExecutionError{
		Owner:    plan.Descriptor.OwnerModel,
		Property: plan.Descriptor.Property,
		Query:    query,
		Class:    a.sql.Dialect().ClassifyError(err),
		Err:      err,
	}
}
