package sql

import (
	"strings"

	core "relgraph/data/db"
)

// Row 一行结果，键为列名（有别名时为别名）。
type Row map[string]any

// Get 读取列值。
func (r Row) Get(column string) (any, bool) {
	v, ok := r[column]
	return v, ok
}

// binaryTypes 这些列类型保留 []byte，其余 []byte 值转为 string
var binaryTypes = map[string]bool{
	"BLOB":       true,
	"BYTEA":      true,
	"BINARY":     true,
	"VARBINARY":  true,
	"TINYBLOB":   true,
	"MEDIUMBLOB": true,
	"LONGBLOB":   true,
}

type rowScanner struct {
	columns []string
	binary  []bool
}

func newRowScanner(rows core.IRows) (*rowScanner, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	s := &rowScanner{columns: cols, binary: make([]bool, len(cols))}
	// 列类型只用于区分二进制列；驱动不提供时全部按文本处理
	if types, err := rows.ColumnTypes(); err == nil && len(types) == len(cols) {
		for i, ct := range types {
			if ct == nil {
				continue
			}
			s.binary[i] = binaryTypes[strings.ToUpper(ct.DatabaseTypeName())]
		}
	}
	return s, nil
}

func (s *rowScanner) scan(rows core.IRows) (Row, error) {
	values := make([]any, len(s.columns))
	ptrs := make([]any, len(s.columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}

	row := make(Row, len(s.columns))
	for i, col := range s.columns {
		v := values[i]
		// 驱动可能复用 []byte 缓冲区，必须拷贝
		if b, ok := v.([]byte); ok {
			if s.binary[i] {
				v = append([]byte(nil), b...)
			} else {
				v = string(b)
			}
		}
		row[col] = v
	}
	return row, nil
}

// ScanRows 将结果集物化为 []Row，保持原始顺序；调用方负责关闭 rows。
func ScanRows(rows core.IRows) ([]Row, error) {
	scanner, err := newRowScanner(rows)
	if err != nil {
		return nil, err
	}
	result := make([]Row, 0)
	for rows.Next() {
		row, err := scanner.scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
