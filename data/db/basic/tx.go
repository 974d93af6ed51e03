package basic

import (
	"context"
	"database/sql"
	"fmt"

	core "relgraph/data/db"
	"relgraph/data/db/dialect"
)

// Tx 事务实现，委托给 *sql.Tx，同时实现 core.IDatabase，
// 使关系加载可以在调用方已开启的事务内读取（事务边界由调用方负责）。
type Tx struct {
	db      *sql.DB
	tx      *sql.Tx
	dialect dialect.Dialect
}

func (t *Tx) Query(ctx context.Context, query string, args ...any) (core.IRows, error) {
	rows, err := t.tx.QueryContext(ctx, t.dialect.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return &Rows{Rows: rows}, nil
}

func (t *Tx) QueryRow(ctx context.Context, query string, args ...any) core.IRow {
	return &Row{Row: t.tx.QueryRowContext(ctx, t.dialect.Rebind(query), args...)}
}

func (t *Tx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, t.dialect.Rebind(query), args...)
}

// Begin 不支持嵌套事务。
func (t *Tx) Begin(ctx context.Context) (core.ITransaction, error) {
	return nil, errNestedTx
}

func (t *Tx) BeginTx(ctx context.Context, opts *sql.TxOptions) (core.ITransaction, error) {
	return nil, errNestedTx
}

var errNestedTx = fmt.Errorf("basic.Tx: nested transactions are not supported")

func (t *Tx) Ping(ctx context.Context) error { return t.db.PingContext(ctx) }
func (t *Tx) Close() error                   { return nil }
func (t *Tx) Raw() any                       { return t.tx }

func (t *Tx) Commit() error   { return t.tx.Commit() }
func (t *Tx) Rollback() error { return t.tx.Rollback() }

// GetDialectName 实现 core.IDialectNameProvider，事务内构建的 SQL 与外层保持同一方言。
func (t *Tx) GetDialectName() string {
	return string(t.dialect.Name())
}
