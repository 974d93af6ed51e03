package basic

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	core "relgraph/data/db"
	"relgraph/data/db/dialect"
	apperrors "relgraph/errors"
)

// DB 基于 database/sql 的最小实现，满足 core.IDatabase 抽象
//
// 每次 Query 从连接池借用一个连接，结果集 Close 后归还；DB 本身不持有长连接。
type DB struct {
	db      *sql.DB
	driver  string
	dialect dialect.Dialect
}

// New 根据 core.DBConfig 创建基础数据库实例
//
// mysql 与 postgres 驱动已在本包注册；sqlite 需要调用方显式空导入 `_ "modernc.org/sqlite"`，
// 以免在不需要 cgo-free sqlite 的服务中引入体积较大的依赖。
func New(config core.DBConfig) (core.IDatabase, error) {
	driver := config.Driver
	if driver == "" {
		driver = "sqlite"
	}
	if driver == "postgresql" {
		driver = "postgres"
	}

	dsn, err := config.DSN()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, apperrors.WrapDatabaseError(context.Background(), err, "open "+driver)
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(config.ConnMaxLifetime) * time.Second)
	}
	if config.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(time.Duration(config.ConnMaxIdleTime) * time.Second)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, apperrors.WrapDatabaseError(ctx, err, "ping "+driver)
	}

	return Wrap(db, driver), nil
}

// Wrap 包装已有的 *sql.DB（例如 sqlmock 创建的连接）。
func Wrap(db *sql.DB, driver string) *DB {
	return &DB{db: db, driver: driver, dialect: dialect.New(driver)}
}

func (d *DB) Query(ctx context.Context, query string, args ...any) (core.IRows, error) {
	rows, err := d.db.QueryContext(ctx, d.dialect.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return &Rows{Rows: rows}, nil
}

func (d *DB) QueryRow(ctx context.Context, query string, args ...any) core.IRow {
	return &Row{Row: d.db.QueryRowContext(ctx, d.dialect.Rebind(query), args...)}
}

func (d *DB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.db.ExecContext(ctx, d.dialect.Rebind(query), args...)
}

func (d *DB) Begin(ctx context.Context) (core.ITransaction, error) {
	return d.BeginTx(ctx, nil)
}

func (d *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (core.ITransaction, error) {
	tx, err := d.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Tx{db: d.db, tx: tx, dialect: d.dialect}, nil
}

func (d *DB) Ping(ctx context.Context) error { return d.db.PingContext(ctx) }
func (d *DB) Close() error                   { return d.db.Close() }
func (d *DB) Raw() any                       { return d.db }

// GetDialectName 实现 core.IDialectNameProvider 接口，返回底层 driver 名
func (d *DB) GetDialectName() string {
	return d.driver
}

// ExecDDL 辅助：执行 DDL（用于测试与示例环境）
func (d *DB) ExecDDL(ctx context.Context, stmts ...string) error {
	if d.db == nil {
		return fmt.Errorf("basic.DB: db is nil")
	}
	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
