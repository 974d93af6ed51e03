package relation

import (
	"database/sql/driver"
	"fmt"
	"reflect"

	dbsql "relgraph/data/db/sql"
	"relgraph/data/orm"
)

// Plan 一次关联加载的查询计划，最多执行一次。
type Plan struct {
	Descriptor Descriptor

	// Skip 属主键为空时为 true：不发起查询，直接产出默认实例或空集合
	Skip bool

	Table    string
	OwnerKey any

	// 仅多对多：中间表与右表的别名映射
	Middle *FieldAliasMap
	Right  *FieldAliasMap

	query    dbsql.ISelectBuilder
	executed bool
}

// SQL 返回将要执行的语句与参数，Skip 时为空
func (p *Plan) SQL() (string, []any) {
	if p.query == nil {
		return "", nil
	}
	return p.query.Build()
}

// Planner 由 Descriptor 与属主键值构建查询计划，不做 I/O。
type Planner struct {
	meta orm.IMetadataProvider
	sql  dbsql.ISql
}

// NewPlanner 创建计划构建器
func NewPlanner(meta orm.IMetadataProvider, client dbsql.ISql) *Planner {
	return &Planner{meta: meta, sql: client}
}

// Plan 构建查询计划，表结构校验失败返回 *PlanError。
func (p *Planner) Plan(d Descriptor, ownerKey any) (*Plan, error) {
	plan := &Plan{Descriptor: d, OwnerKey: ownerKey}

	switch d.Kind {
	case orm.OneToOne, orm.OneToMany:
		table, fields, err := p.schema(d, d.RelatedModel)
		if err != nil {
			return nil, err
		}
		if err := requireColumn(d, table, fields, d.RemoteKey); err != nil {
			return nil, err
		}
		plan.Table = table
		if IsNullKey(ownerKey) {
			plan.Skip = true
			return plan, nil
		}
		plan.query = p.sql.Select().From(table).WhereOp(d.RemoteKey, "=", ownerKey)

	case orm.ManyToMany:
		rightTable, rightFields, err := p.schema(d, d.RelatedModel)
		if err != nil {
			return nil, err
		}
		middleTable, middleFields, err := p.schema(d, d.MiddleModel)
		if err != nil {
			return nil, err
		}
		if err := requireColumn(d, rightTable, rightFields, d.RemoteKey); err != nil {
			return nil, err
		}
		if err := requireColumn(d, middleTable, middleFields, d.MiddleLocalKey); err != nil {
			return nil, err
		}
		if err := requireColumn(d, middleTable, middleFields, d.MiddleRemoteKey); err != nil {
			return nil, err
		}
		if middleTable == rightTable {
			return nil, planErr(d, fmt.Sprintf("middle and related model share table %q", rightTable), nil)
		}

		plan.Table = rightTable
		plan.Middle = NewFieldAliasMap(middleTable, middleFields)
		plan.Right = NewFieldAliasMap(rightTable, rightFields)
		if err := checkUnique(plan.Middle, plan.Right); err != nil {
			return nil, planErr(d, "ambiguous projection", err)
		}
		if IsNullKey(ownerKey) {
			plan.Skip = true
			return plan, nil
		}

		projection := append(plan.Middle.Projection(), plan.Right.Projection()...)
		plan.query = p.sql.Select().
			From(rightTable).
			Fields(projection...).
			Join(middleTable, middleTable+"."+d.MiddleRemoteKey, "=", rightTable+"."+d.RemoteKey).
			WhereOp(middleTable+"."+d.MiddleLocalKey, "=", ownerKey)

	default:
		return nil, planErr(d, fmt.Sprintf("unsupported relation kind %s", d.Kind), nil)
	}

	if err := plan.query.Err(); err != nil {
		return nil, planErr(d, "invalid query", err)
	}
	return plan, nil
}

func (p *Planner) schema(d Descriptor, model string) (string, []string, error) {
	table, err := p.meta.TableName(model)
	if err != nil {
		return "", nil, planErr(d, "table of "+model, err)
	}
	if table == "" {
		return "", nil, planErr(d, fmt.Sprintf("model %s has an empty table name", model), nil)
	}
	if !dbsql.IsSafeIdentifier(table) {
		return "", nil, planErr(d, fmt.Sprintf("unsafe table name %q", table), nil)
	}
	fields, err := p.meta.FieldNames(model)
	if err != nil {
		return "", nil, planErr(d, "fields of "+model, err)
	}
	if len(fields) == 0 {
		return "", nil, planErr(d, fmt.Sprintf("model %s has no fields", model), nil)
	}
	return table, fields, nil
}

func requireColumn(d Descriptor, table string, fields []string, column string) error {
	for _, f := range fields {
		if f == column {
			return nil
		}
	}
	return planErr(d, fmt.Sprintf("column %q does not exist in %s", column, table), orm.ErrFieldNotFound)
}

// IsNullKey 判断属主键值是否为空：nil、nil 指针/接口，以及 Value() 返回 nil 的 driver.Valuer（例如无效的 sql.NullInt64）。
func IsNullKey(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice:
		if rv.IsNil() {
			return true
		}
	}
	if valuer, ok := v.(driver.Valuer); ok {
		val, err := valuer.Value()
		return err == nil && val == nil
	}
	if rv.Kind() == reflect.Ptr {
		return IsNullKey(rv.Elem().Interface())
	}
	return false
}
