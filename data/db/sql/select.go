package sql

import (
	"context"
	"fmt"
	"strings"

	core "relgraph/data/db"
	"relgraph/data/db/dialect"
)

type joinClause struct {
	table string
	left  string
	op    string
	right string
}

type selectBuilder struct {
	db      core.IDatabase
	dialect dialect.Dialect

	cols    []string
	fields  []Field
	table   string
	joins   []joinClause
	where   []string
	args    []any
	orderBy string
	limit   int
	offset  int

	err error
}

func (b *selectBuilder) setErr(format string, args ...any) {
	if b.err == nil {
		b.err = fmt.Errorf("selectBuilder: "+format, args...)
	}
}

func (b *selectBuilder) From(table string) ISelectBuilder {
	if !IsSafeIdentifier(table) {
		b.setErr("unsafe table name %q", table)
	}
	b.table = table
	return b
}

// Fields 追加带别名的投影列；一旦设置，Select 传入的原始列将被忽略。
func (b *selectBuilder) Fields(fields ...Field) ISelectBuilder {
	for _, f := range fields {
		if !IsSafeIdentifier(f.Expr) {
			b.setErr("unsafe field expression %q", f.Expr)
			continue
		}
		if f.Alias != "" && (!IsSafeIdentifier(f.Alias) || strings.Contains(f.Alias, ".")) {
			b.setErr("unsafe field alias %q", f.Alias)
			continue
		}
		b.fields = append(b.fields, f)
	}
	return b
}

// Join 追加 INNER JOIN，left/right 为 table.column 形式。
func (b *selectBuilder) Join(table, left, op, right string) ISelectBuilder {
	switch {
	case !IsSafeIdentifier(table):
		b.setErr("unsafe join table %q", table)
	case !IsSafeIdentifier(left):
		b.setErr("unsafe join column %q", left)
	case !IsSafeIdentifier(right):
		b.setErr("unsafe join column %q", right)
	case !isAllowedOperator(op):
		b.setErr("unsupported join operator %q", op)
	default:
		b.joins = append(b.joins, joinClause{table: table, left: left, op: strings.ToUpper(strings.TrimSpace(op)), right: right})
	}
	return b
}

func (b *selectBuilder) Where(cond string, args ...any) ISelectBuilder {
	if cond != "" {
		b.where = append(b.where, cond)
		b.args = append(b.args, args...)
	}
	return b
}

// WhereOp 追加 `field op ?` 条件，field 按方言加引号。
func (b *selectBuilder) WhereOp(field, op string, value any) ISelectBuilder {
	if !IsSafeIdentifier(field) {
		b.setErr("unsafe where field %q", field)
		return b
	}
	if !isAllowedOperator(op) {
		b.setErr("unsupported where operator %q", op)
		return b
	}
	cond := b.dialect.QuoteIdentifier(field) + " " + strings.ToUpper(strings.TrimSpace(op)) + " ?"
	return b.Where(cond, value)
}

func (b *selectBuilder) And(cond string, args ...any) ISelectBuilder {
	return b.Where(cond, args...)
}

func (b *selectBuilder) OrderBy(expr string) ISelectBuilder {
	if expr != "" {
		b.orderBy = expr
	}
	return b
}

func (b *selectBuilder) Limit(n int) ISelectBuilder {
	b.limit = n
	return b
}

func (b *selectBuilder) Offset(n int) ISelectBuilder {
	b.offset = n
	return b
}

func (b *selectBuilder) Err() error {
	if b.err != nil {
		return b.err
	}
	if b.table == "" {
		return fmt.Errorf("selectBuilder: table is required")
	}
	return nil
}

func (b *selectBuilder) projection() string {
	if len(b.fields) == 0 {
		return strings.Join(b.cols, ", ")
	}
	parts := make([]string, len(b.fields))
	for i, f := range b.fields {
		expr := b.dialect.QuoteIdentifier(f.Expr)
		if f.Alias != "" {
			expr += " AS " + b.dialect.QuoteIdentifier(f.Alias)
		}
		parts[i] = expr
	}
	return strings.Join(parts, ", ")
}

func (b *selectBuilder) Build() (string, []any) {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(b.projection())
	sb.WriteString(" FROM ")
	sb.WriteString(b.dialect.QuoteIdentifier(b.table))

	for _, j := range b.joins {
		sb.WriteString(" INNER JOIN ")
		sb.WriteString(b.dialect.QuoteIdentifier(j.table))
		sb.WriteString(" ON ")
		sb.WriteString(b.dialect.QuoteIdentifier(j.left))
		sb.WriteString(" ")
		sb.WriteString(j.op)
		sb.WriteString(" ")
		sb.WriteString(b.dialect.QuoteIdentifier(j.right))
	}

	// 使用局部 args 副本，避免在多次 Build 调用之间污染 builder 状态。
	args := make([]any, 0, len(b.args)+2)
	args = append(args, b.args...)

	if len(b.where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(b.where, " AND "))
	}
	if b.orderBy != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(b.orderBy)
	}
	if b.limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, b.limit)
	}
	if b.offset > 0 {
		sb.WriteString(" OFFSET ?")
		args = append(args, b.offset)
	}
	return sb.String(), args
}

func (b *selectBuilder) Query(ctx context.Context) (core.IRows, error) {
	if err := b.Err(); err != nil {
		return nil, err
	}
	q, args := b.Build()
	return b.db.Query(ctx, q, args...)
}

func (b *selectBuilder) QueryRow(ctx context.Context) core.IRow {
	q, args := b.Build()
	return b.db.QueryRow(ctx, q, args...)
}

func (b *selectBuilder) One(ctx context.Context) (Row, error) {
	rows, err := b.Query(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scanner, err := newRowScanner(rows)
	if err != nil {
		return nil, err
	}
	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanner.scan(rows)
}

func (b *selectBuilder) All(ctx context.Context) ([]Row, error) {
	rows, err := b.Query(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return ScanRows(rows)
}
