package basic

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	core "relgraph/data/db"
	apperrors "relgraph/errors"
)

func newSQLite(t *testing.T) *DB {
	t.Helper()
	db, err := New(core.DBConfig{Driver: "sqlite", MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db.(*DB)
}

func TestNew_SQLiteQueryRoundTrip(t *testing.T) {
	db := newSQLite(t)
	ctx := context.Background()
	assert.Equal(t, "sqlite", db.GetDialectName())

	require.NoError(t, db.ExecDDL(ctx,
		`CREATE TABLE roles (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`,
		`INSERT INTO roles (id, name) VALUES (1, 'admin'), (2, 'editor')`,
	))

	rows, err := db.Query(ctx, `SELECT id, name FROM roles ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()

	cols, err := rows.Columns()
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, cols)

	var names []string
	for rows.Next() {
		var id int64
		var name string
		require.NoError(t, rows.Scan(&id, &name))
		names = append(names, name)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"admin", "editor"}, names)
}

func TestTx_CommitAndRollback(t *testing.T) {
	db := newSQLite(t)
	ctx := context.Background()
	require.NoError(t, db.ExecDDL(ctx, `CREATE TABLE roles (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`))

	tx, err := db.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Exec(ctx, `INSERT INTO roles (id, name) VALUES (?, ?)`, 1, "admin")
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	tx, err = db.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Exec(ctx, `INSERT INTO roles (id, name) VALUES (?, ?)`, 2, "editor")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	var n int
	require.NoError(t, db.QueryRow(ctx, `SELECT COUNT(*) FROM roles`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestNew_UnsupportedDriver(t *testing.T) {
	_, err := New(core.DBConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestNew_UnreachableDatabase(t *testing.T) {
	_, err := New(core.DBConfig{Driver: "postgres", Host: "127.0.0.1", Port: 1, Database: "shop"})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeDatabase, apperrors.GetErrorCode(err))
}

func TestWrap_Postgres(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer sqlDB.Close()

	db := Wrap(sqlDB, "postgres")
	assert.Equal(t, "postgres", db.GetDialectName())

	mock.ExpectQuery(`SELECT name FROM roles WHERE id = $1`).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("admin"))

	var name string
	require.NoError(t, db.QueryRow(context.Background(), `SELECT name FROM roles WHERE id = ?`, 1).Scan(&name))
	assert.Equal(t, "admin", name)
	assert.NoError(t, mock.ExpectationsWereMet())
}
