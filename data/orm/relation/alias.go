package relation

import (
	"fmt"
	"strings"

	dbsql "relgraph/data/db/sql"
)

// Alias 生成联表查询中的列别名：<table>_<field>。
// 表名中的 schema 分隔符 "." 替换为 "_"。
func Alias(table, field string) string {
	return strings.ReplaceAll(table, ".", "_") + "_" + field
}

type aliasEntry struct {
	alias string
	field string
}

// FieldAliasMap 单个表在联表投影中的 别名 -> 字段 映射，保持字段声明顺序。
type FieldAliasMap struct {
	table   string
	entries []aliasEntry
	byAlias map[string]string
	dups    []string
}

// NewFieldAliasMap 为 table 的全部字段生成别名。
//
// 重复出现的字段只保留第一次出现的位置，并记录下来：checkUnique 将其视为冲突。
func NewFieldAliasMap(table string, fields []string) *FieldAliasMap {
	m := &FieldAliasMap{
		table:   table,
		entries: make([]aliasEntry, 0, len(fields)),
		byAlias: make(map[string]string, len(fields)),
	}
	for _, f := range fields {
		a := Alias(table, f)
		if _, dup := m.byAlias[a]; dup {
			m.dups = append(m.dups, f)
			continue
		}
		m.entries = append(m.entries, aliasEntry{alias: a, field: f})
		m.byAlias[a] = f
	}
	return m
}

func (m *FieldAliasMap) Table() string { return m.table }

func (m *FieldAliasMap) Len() int { return len(m.entries) }

// Field 由别名还原字段名
func (m *FieldAliasMap) Field(alias string) (string, bool) {
	f, ok := m.byAlias[alias]
	return f, ok
}

// Aliases 按字段顺序返回别名
func (m *FieldAliasMap) Aliases() []string {
	out := make([]string, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.alias
	}
	return out
}

// Projection 返回 table.field AS alias 投影列
func (m *FieldAliasMap) Projection() []dbsql.Field {
	out := make([]dbsql.Field, len(m.entries))
	for i, e := range m.entries {
		out[i] = dbsql.Field{Expr: m.table + "." + e.field, Alias: e.alias}
	}
	return out
}

// Demux 从联表结果行中取出本表字段，键为原始字段名。
// 行中缺失的别名不会出现在结果中。
func (m *FieldAliasMap) Demux(row dbsql.Row) map[string]any {
	out := make(map[string]any, len(m.entries))
	for _, e := range m.entries {
		if v, ok := row[e.alias]; ok {
			out[e.field] = v
		}
	}
	return out
}

// checkUnique 检查多个表的别名在整个投影中互不相同。
func checkUnique(maps ...*FieldAliasMap) error {
	seen := make(map[string]string)
	for _, m := range maps {
		if len(m.dups) > 0 {
			return fmt.Errorf("field %q is listed more than once in %s", m.dups[0], m.table)
		}
		for _, e := range m.entries {
			owner := m.table + "." + e.field
			if prev, dup := seen[e.alias]; dup {
				return fmt.Errorf("alias %q is produced by both %s and %s", e.alias, prev, owner)
			}
			seen[e.alias] = owner
		}
	}
	return nil
}
