package sql

import (
	"context"
	"database/sql"

	core "relgraph/data/db"
	"relgraph/data/db/dialect"
)

// ISql 提供统一的 SQL 构建与执行接口。
type ISql interface {
	Select(columns ...string) ISelectBuilder
	InsertInto(table string) IInsertBuilder

	// Dialect 返回构建时使用的方言。
	Dialect() dialect.Dialect

	// GetDB 返回底层 IDatabase（仅示例/特殊场景使用）。
	GetDB() core.IDatabase
}

// Field 表示一个带别名的投影列。
//
// Expr 必须是安全标识符（column 或 table.column），渲染时按方言加引号；
// Alias 为空时不生成 AS 子句。
type Field struct {
	Expr  string
	Alias string
}

// ISelectBuilder 构建 SELECT 语句。
//
// 标识符校验失败不会 panic：首个错误记录在构建器上，
// Err() 可在执行前检查，Query/One/All 会直接返回该错误。
type ISelectBuilder interface {
	From(table string) ISelectBuilder
	Fields(fields ...Field) ISelectBuilder
	Join(table, left, op, right string) ISelectBuilder
	Where(cond string, args ...any) ISelectBuilder
	WhereOp(field, op string, value any) ISelectBuilder
	And(cond string, args ...any) ISelectBuilder
	OrderBy(expr string) ISelectBuilder
	Limit(n int) ISelectBuilder
	Offset(n int) ISelectBuilder

	Err() error
	Build() (query string, args []any)

	Query(ctx context.Context) (core.IRows, error)
	QueryRow(ctx context.Context) core.IRow
	// One 返回第一行；无结果时返回 (nil, nil)。
	One(ctx context.Context) (Row, error)
	// All 返回全部行，保持数据库返回顺序；无结果时返回空切片。
	All(ctx context.Context) ([]Row, error)
}

// IInsertBuilder 构建 INSERT 语句。
type IInsertBuilder interface {
	Columns(cols ...string) IInsertBuilder
	Values(vals ...any) IInsertBuilder
	Row(row Row) IInsertBuilder
	Err() error
	Build() (query string, args []any)
	Exec(ctx context.Context) (sql.Result, error)
}

type sqlImpl struct {
	db      core.IDatabase
	dialect dialect.Dialect
}

// New 创建 ISql 实例。
func New(db core.IDatabase) ISql {
	return &sqlImpl{
		db:      db,
		dialect: dialect.FromDatabase(db),
	}
}

func (s *sqlImpl) Select(columns ...string) ISelectBuilder {
	if len(columns) == 0 {
		columns = []string{"*"}
	}
	return &selectBuilder{
		db:      s.db,
		dialect: s.dialect,
		cols:    columns,
	}
}

func (s *sqlImpl) InsertInto(table string) IInsertBuilder {
	return &insertBuilder{
		db:      s.db,
		dialect: s.dialect,
		table:   table,
	}
}

func (s *sqlImpl) Dialect() dialect.Dialect { return s.dialect }

func (s *sqlImpl) GetDB() core.IDatabase {
	return s.db
}
