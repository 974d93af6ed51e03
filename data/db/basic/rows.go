package basic

import (
	"database/sql"

	core "relgraph/data/db"
)

// Rows 结果集；Close 后底层连接归还连接池
type Rows struct{ *sql.Rows }

// Row 单行结果
type Row struct{ *sql.Row }

var (
	_ core.IRows = (*Rows)(nil)
	_ core.IRow  = (*Row)(nil)
)
