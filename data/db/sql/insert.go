package sql

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"

	core "relgraph/data/db"
	"relgraph/data/db/dialect"
)

// insertBuilder 多行 INSERT。与 selectBuilder 一样，校验错误延迟到 Err/Exec 返回。
type insertBuilder struct {
	db      core.IDatabase
	dialect dialect.Dialect

	table   string
	columns []string
	rows    [][]any

	err error
}

func (b *insertBuilder) setErr(format string, args ...any) {
	if b.err == nil {
		b.err = fmt.Errorf("insertBuilder: "+format, args...)
	}
}

func (b *insertBuilder) Columns(cols ...string) IInsertBuilder {
	if len(b.rows) > 0 {
		b.setErr("columns must be set before values")
		return b
	}
	for _, c := range cols {
		if !IsSafeIdentifier(c) || strings.Contains(c, ".") {
			b.setErr("unsafe column name %q", c)
		}
	}
	b.columns = cols
	return b
}

func (b *insertBuilder) Values(vals ...any) IInsertBuilder {
	if len(vals) != len(b.columns) {
		b.setErr("row %d has %d values, want %d", len(b.rows)+1, len(vals), len(b.columns))
		return b
	}
	b.rows = append(b.rows, vals)
	return b
}

// Row 按列名追加一行；未设置列时以首行的列名（排序后）为准，缺失的列写入 NULL。
func (b *insertBuilder) Row(row Row) IInsertBuilder {
	if len(b.columns) == 0 {
		cols := make([]string, 0, len(row))
		for c := range row {
			cols = append(cols, c)
		}
		slices.Sort(cols)
		b.Columns(cols...)
	}
	vals := make([]any, len(b.columns))
	for i, c := range b.columns {
		vals[i] = row[c]
	}
	for c := range row {
		if !slices.Contains(b.columns, c) {
			b.setErr("row %d has unknown column %q", len(b.rows)+1, c)
		}
	}
	return b.Values(vals...)
}

func (b *insertBuilder) Err() error {
	if b.err != nil {
		return b.err
	}
	if !IsSafeIdentifier(b.table) {
		return fmt.Errorf("insertBuilder: unsafe table name %q", b.table)
	}
	if len(b.columns) == 0 {
		return fmt.Errorf("insertBuilder: columns are required")
	}
	if len(b.rows) == 0 {
		return fmt.Errorf("insertBuilder: at least one row is required")
	}
	return nil
}

func (b *insertBuilder) Build() (string, []any) {
	quoted := make([]string, len(b.columns))
	for i, c := range b.columns {
		quoted[i] = b.dialect.QuoteIdentifier(c)
	}
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(b.columns)), ", ") + ")"

	tuples := make([]string, len(b.rows))
	args := make([]any, 0, len(b.rows)*len(b.columns))
	for i, r := range b.rows {
		tuples[i] = tuple
		args = append(args, r...)
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		b.dialect.QuoteIdentifier(b.table), strings.Join(quoted, ", "), strings.Join(tuples, ", "))
	return q, args
}

func (b *insertBuilder) Exec(ctx context.Context) (sql.Result, error) {
	if err := b.Err(); err != nil {
		return nil, err
	}
	q, args := b.Build()
	return b.db.Exec(ctx, q, args...)
}
