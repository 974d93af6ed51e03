// Package db 提供关系加载所依赖的最小数据库抽象
//
// 设计目标：
// 1. 隔离具体驱动（sqlite、mysql、postgres）
// 2. 查询按次借用连接池中的连接，结果集关闭即归还
// 3. 便于单元测试（sqlmock / 内存 sqlite）
package db

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// IDatabase 通用数据库接口
type IDatabase interface {
	// 查询操作
	Query(ctx context.Context, query string, args ...any) (IRows, error)
	QueryRow(ctx context.Context, query string, args ...any) IRow

	// 执行操作（仅用于夹具与示例数据写入）
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)

	// 事务操作
	Begin(ctx context.Context) (ITransaction, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (ITransaction, error)

	// 连接管理
	Ping(ctx context.Context) error
	Close() error

	// 获取原始连接（用于特殊场景）
	Raw() any
}

// IDialectNameProvider 可选接口：提供底层数据库方言名称
//
// 实现方应返回诸如 "mysql"、"sqlite"、"postgres" 等 driver/dialect 名，
// 供 sql 构建层推断标识符引用与占位符风格。
type IDialectNameProvider interface {
	GetDialectName() string
}

// ITransaction 事务接口
type ITransaction interface {
	IDatabase

	Commit() error
	Rollback() error
}

// IRows 查询结果集接口
type IRows interface {
	Next() bool
	Scan(dest ...any) error
	Close() error
	Err() error

	Columns() ([]string, error)
	ColumnTypes() ([]*sql.ColumnType, error)
}

// IRow 单行结果接口
type IRow interface {
	Scan(dest ...any) error
	Err() error
}

// DBConfig 数据库配置
type DBConfig struct {
	Driver   string `koanf:"driver"` // mysql, postgres, sqlite
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Database string `koanf:"database"` // sqlite 场景下为文件路径或 :memory:
	Username string `koanf:"username"`
	Password string `koanf:"password"`

	// 连接池配置
	MaxOpenConns    int `koanf:"max_open_conns"`
	MaxIdleConns    int `koanf:"max_idle_conns"`
	ConnMaxLifetime int `koanf:"conn_max_lifetime"`  // 秒
	ConnMaxIdleTime int `koanf:"conn_max_idle_time"` // 秒

	// 其他选项
	Charset   string `koanf:"charset"`
	ParseTime bool   `koanf:"parse_time"`
	Location  string `koanf:"location"`
	SSLMode   string `koanf:"ssl_mode"`

	// DSNOverride 非空时直接作为 DSN 使用
	DSNOverride string `koanf:"dsn"`
}

// DSN 按驱动生成连接串。
//
//   - mysql：通过 go-sql-driver 的 Config.FormatDSN 生成；
//   - postgres：生成 lib/pq 识别的 key=value 形式；
//   - sqlite：直接使用 Database 字段。
func (c DBConfig) DSN() (string, error) {
	if c.DSNOverride != "" {
		return c.DSNOverride, nil
	}

	switch strings.ToLower(c.Driver) {
	case "mysql":
		mc := mysql.NewConfig()
		mc.User = c.Username
		mc.Passwd = c.Password
		mc.DBName = c.Database
		mc.ParseTime = c.ParseTime
		if c.Host != "" {
			mc.Net = "tcp"
			port := c.Port
			if port == 0 {
				port = 3306
			}
			mc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(port))
		}
		if c.Charset != "" {
			mc.Params = map[string]string{"charset": c.Charset}
		}
		if c.Location != "" {
			loc, err := time.LoadLocation(c.Location)
			if err != nil {
				return "", fmt.Errorf("db: invalid location %q: %w", c.Location, err)
			}
			mc.Loc = loc
		}
		return mc.FormatDSN(), nil
	case "postgres", "postgresql":
		parts := make([]string, 0, 6)
		add := func(k, v string) {
			if v != "" {
				parts = append(parts, k+"="+quoteDSNValue(v))
			}
		}
		add("host", c.Host)
		if c.Port > 0 {
			add("port", strconv.Itoa(c.Port))
		}
		add("user", c.Username)
		add("password", c.Password)
		add("dbname", c.Database)
		sslMode := c.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		add("sslmode", sslMode)
		return strings.Join(parts, " "), nil
	case "", "sqlite", "sqlite3":
		if c.Database == "" {
			return ":memory:", nil
		}
		return c.Database, nil
	default:
		return "", fmt.Errorf("db: unsupported driver %q", c.Driver)
	}
}

// quoteDSNValue 对包含空白或引号的值加单引号（libpq 规则）。
func quoteDSNValue(v string) string {
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// NewDatabaseFunc 工厂方法（由具体实现提供）
type NewDatabaseFunc func(config DBConfig) (IDatabase, error)
