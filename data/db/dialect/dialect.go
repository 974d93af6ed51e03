package dialect

import (
	"context"
	"database/sql/driver"
	stdErrors "errors"
	"net"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	core "relgraph/data/db"
)

// Name 标准化的数据库方言名称
type Name string

const (
	NameMySQL    Name = "mysql"
	NameSQLite   Name = "sqlite"
	NamePostgres Name = "postgres"
	NameUnknown  Name = ""
)

// Dialect 表示当前数据库的方言能力
//
// 只抽象关系加载实际用到的能力：
//   - QuoteIdentifier: 表名/列名引用
//   - Rebind: 占位符风格
//   - ClassifyError: 查询失败原因归类
type Dialect struct {
	name Name
}

// New 根据字符串构造方言（大小写不敏感）
func New(name string) Dialect {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mysql":
		return Dialect{name: NameMySQL}
	case "sqlite", "sqlite3":
		return Dialect{name: NameSQLite}
	case "postgres", "postgresql", "pgx":
		return Dialect{name: NamePostgres}
	default:
		return Dialect{name: NameUnknown}
	}
}

// FromDatabase 从 IDatabase 实例推断方言
//
// 需要 IDatabase 可选实现 IDialectNameProvider 接口；否则返回 Unknown。
func FromDatabase(db core.IDatabase) Dialect {
	if db == nil {
		return Dialect{name: NameUnknown}
	}
	if p, ok := db.(core.IDialectNameProvider); ok {
		return New(p.GetDialectName())
	}
	return Dialect{name: NameUnknown}
}

// Name 返回标准化方言名
func (d Dialect) Name() Name {
	return d.name
}

// QuoteIdentifier 根据方言对标识符进行转义（如表名/列名）。
//
// 约定：
//   - 支持 table.column 等带点形式，会对每一段分别加引号；
//   - MySQL 使用反引号，Postgres 使用 pq.QuoteIdentifier，SQLite 使用双引号；
//   - Unknown 方言返回原始字符串；
//   - 该方法不负责校验标识符语法，仅负责按方言加引号。
func (d Dialect) QuoteIdentifier(name string) string {
	if name == "" {
		return ""
	}
	parts := strings.Split(name, ".")
	for i, p := range parts {
		if p == "" || p == "*" {
			continue
		}
		switch d.name {
		case NameMySQL:
			parts[i] = "`" + strings.ReplaceAll(p, "`", "``") + "`"
		case NamePostgres:
			parts[i] = pq.QuoteIdentifier(p)
		case NameSQLite:
			parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
		default:
		}
	}
	return strings.Join(parts, ".")
}

// Rebind 将通用占位符 ? 转换为方言特定形式。
//
// 目前仅对 Postgres 做替换，将 ? 依次替换为 $1、$2...；其他方言保持原样。
// 简单字符扫描，不解析字符串字面量：构建层只生成参数化条件，不会出现字面量中的 ?。
func (d Dialect) Rebind(query string) string {
	if query == "" || d.name != NamePostgres {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 4)
	argIndex := 1
	for i := 0; i < len(query); i++ {
		ch := query[i]
		if ch == '?' {
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(argIndex))
			argIndex++
		} else {
			sb.WriteByte(ch)
		}
	}
	return sb.String()
}

// ErrorClass 查询失败原因的粗粒度分类
type ErrorClass string

const (
	ErrorClassTimeout    ErrorClass = "timeout"
	ErrorClassCanceled   ErrorClass = "canceled"
	ErrorClassConnection ErrorClass = "connection"
	ErrorClassStatement  ErrorClass = "statement"
	ErrorClassUnknown    ErrorClass = "unknown"
)

// mysql 服务端错误号
const (
	mysqlParseError      = 1064
	mysqlNoSuchTable     = 1146
	mysqlBadField        = 1054
	mysqlLockWaitTimeout = 1205
	mysqlQueryTimeout    = 3024
	mysqlQueryInterrupt  = 1317
)

// ClassifyError 对查询错误归类，仅用于诊断信息，不驱动重试。
//
// 优先识别 context 错误，其次是驱动特有的错误类型（*mysql.MySQLError、*pq.Error），
// 最后是 driver.ErrBadConn 与网络错误。
func (d Dialect) ClassifyError(err error) ErrorClass {
	if err == nil {
		return ""
	}
	if stdErrors.Is(err, context.DeadlineExceeded) {
		return ErrorClassTimeout
	}
	if stdErrors.Is(err, context.Canceled) {
		return ErrorClassCanceled
	}

	var myErr *mysql.MySQLError
	if stdErrors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlParseError, mysqlNoSuchTable, mysqlBadField:
			return ErrorClassStatement
		case mysqlLockWaitTimeout, mysqlQueryTimeout:
			return ErrorClassTimeout
		case mysqlQueryInterrupt:
			return ErrorClassCanceled
		}
		return ErrorClassUnknown
	}

	var pgErr *pq.Error
	if stdErrors.As(err, &pgErr) {
		switch pgErr.Code.Class() {
		case "08": // connection_exception
			return ErrorClassConnection
		case "42": // syntax_error_or_access_rule_violation
			return ErrorClassStatement
		case "57": // operator_intervention, 包含 query_canceled
			if pgErr.Code == "57014" {
				return ErrorClassTimeout
			}
			return ErrorClassConnection
		}
		return ErrorClassUnknown
	}

	if stdErrors.Is(err, driver.ErrBadConn) || stdErrors.Is(err, mysql.ErrInvalidConn) {
		return ErrorClassConnection
	}
	var netErr net.Error
	if stdErrors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorClassTimeout
		}
		return ErrorClassConnection
	}

	msg := strings.ToLower(err.Error())
	if d.name == NameSQLite && (strings.Contains(msg, "syntax error") || strings.Contains(msg, "no such")) {
		return ErrorClassStatement
	}
	return ErrorClassUnknown
}
