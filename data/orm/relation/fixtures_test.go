package relation

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"relgraph/data/db/basic"
	dbsql "relgraph/data/db/sql"
	"relgraph/data/orm"
	"relgraph/logging"
)

type User struct {
	ID        int64       `db:"id" gorm:"primaryKey"`
	Name      string      `db:"name"`
	Profile   *Profile    `rel:"one_to_one,model=Profile"`
	Posts     []*Post     `rel:"one_to_many,model=Post"`
	UserRoles []*UserRole `rel:"many_to_many,model=Role,middle=UserRole,right_many=Roles"`
	Roles     []*Role
	Drafts    []*Post `rel:"one_to_many,model=Post,autoselect=false"`
}

type Profile struct {
	ID     int64  `db:"id"`
	UserID int64  `db:"user_id"`
	Bio    string `db:"bio"`
}

type Post struct {
	ID     int64  `db:"id"`
	UserID int64  `db:"user_id"`
	Title  string `db:"title"`
}

type Role struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

type UserRole struct {
	ID     int64 `db:"id"`
	UserID int64 `db:"user_id"`
	RoleID int64 `db:"role_id"`
}

const (
	profileQuery = `SELECT * FROM "profiles" WHERE "user_id" = ?`
	postsQuery   = `SELECT * FROM "posts" WHERE "user_id" = ?`
	rolesQuery   = `SELECT "user_roles"."id" AS "user_roles_id", "user_roles"."user_id" AS "user_roles_user_id", ` +
		`"user_roles"."role_id" AS "user_roles_role_id", "roles"."id" AS "roles_id", "roles"."name" AS "roles_name" ` +
		`FROM "roles" INNER JOIN "user_roles" ON "user_roles"."role_id" = "roles"."id" WHERE "user_roles"."user_id" = ?`
)

var rolesColumns = []string{"user_roles_id", "user_roles_user_id", "user_roles_role_id", "roles_id", "roles_name"}

func newRegistry(t *testing.T) *orm.Registry {
	t.Helper()
	reg := orm.NewRegistry()
	for _, m := range []any{User{}, Profile{}, Post{}, Role{}, UserRole{}} {
		_, err := reg.Register(m, orm.WithNamespace("app"))
		require.NoError(t, err)
	}
	return reg
}

func newMockClient(t *testing.T) (dbsql.ISql, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return dbsql.New(basic.Wrap(db, "sqlite")), mock
}

func newMockLoader(t *testing.T, opts ...Option) (*Loader, *orm.Registry, sqlmock.Sqlmock) {
	t.Helper()
	reg := newRegistry(t)
	client, mock := newMockClient(t)
	opts = append([]Option{WithLogger(logging.NewNoopLogger())}, opts...)
	return NewLoader(client, reg, reg, opts...), reg, mock
}

func annotation(t *testing.T, reg *orm.Registry, model, property string) orm.RelationAnnotation {
	t.Helper()
	ann, ok := reg.RelationAnnotation(model, property)
	require.True(t, ok, "%s.%s has no relation", model, property)
	return ann
}
