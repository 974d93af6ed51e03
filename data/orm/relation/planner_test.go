package relation

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relgraph/data/orm"
)

func resolve(t *testing.T, reg *orm.Registry, property string) Descriptor {
	t.Helper()
	d, err := NewResolver(reg, 0).Resolve("app.User", property, annotation(t, reg, "app.User", property))
	require.NoError(t, err)
	return d
}

func TestPlanner_SingleTable(t *testing.T) {
	reg := newRegistry(t)
	client, mock := newMockClient(t)
	p := NewPlanner(reg, client)

	plan, err := p.Plan(resolve(t, reg, "posts"), int64(7))
	require.NoError(t, err)
	assert.False(t, plan.Skip)
	assert.Equal(t, "posts", plan.Table)
	assert.Nil(t, plan.Middle)

	q, args := plan.SQL()
	assert.Equal(t, postsQuery, q)
	assert.Equal(t, []any{int64(7)}, args)
	assert.NoError(t, mock.ExpectationsWereMet(), "planning performs no I/O")
}

func TestPlanner_ManyToMany(t *testing.T) {
	reg := newRegistry(t)
	client, _ := newMockClient(t)
	p := NewPlanner(reg, client)

	plan, err := p.Plan(resolve(t, reg, "user_roles"), int64(7))
	require.NoError(t, err)
	assert.Equal(t, "roles", plan.Table)
	assert.Equal(t, []string{"user_roles_id", "user_roles_user_id", "user_roles_role_id"}, plan.Middle.Aliases())
	assert.Equal(t, []string{"roles_id", "roles_name"}, plan.Right.Aliases())

	q, args := plan.SQL()
	assert.Equal(t, rolesQuery, q)
	assert.Equal(t, []any{int64(7)}, args)
}

func TestPlanner_NullKeySkips(t *testing.T) {
	reg := newRegistry(t)
	client, _ := newMockClient(t)
	p := NewPlanner(reg, client)

	var typedNil *int64
	for _, key := range []any{nil, typedNil, sql.NullInt64{}} {
		for _, prop := range []string{"profile", "posts", "user_roles"} {
			plan, err := p.Plan(resolve(t, reg, prop), key)
			require.NoError(t, err)
			assert.True(t, plan.Skip, "%s with key %#v", prop, key)
			q, _ := plan.SQL()
			assert.Empty(t, q)
		}
	}
}

func TestPlanner_PlanErrors(t *testing.T) {
	base := Descriptor{Kind: orm.OneToMany, OwnerModel: "app.User", Property: "posts", RelatedModel: "app.Post", LocalKey: "id", RemoteKey: "user_id"}

	tests := []struct {
		name   string
		mutate func(reg *orm.Registry, d *Descriptor)
	}{
		{"远端列不存在", func(_ *orm.Registry, d *Descriptor) { d.RemoteKey = "author_id" }},
		{"关联模型未注册", func(_ *orm.Registry, d *Descriptor) { d.RelatedModel = "app.Ghost" }},
		{"非法表名", func(reg *orm.Registry, d *Descriptor) {
			require.NoError(t, reg.RegisterMeta(&orm.ModelMeta{Name: "Bad", Namespace: "app", Table: "bad table",
				Fields: []orm.FieldMeta{{Name: "id"}, {Name: "user_id"}}}))
			d.RelatedModel = "app.Bad"
		}},
		{"没有字段", func(reg *orm.Registry, d *Descriptor) {
			require.NoError(t, reg.RegisterMeta(&orm.ModelMeta{Name: "Empty", Namespace: "app"}))
			d.RelatedModel = "app.Empty"
		}},
		{"自连接别名冲突", func(_ *orm.Registry, d *Descriptor) {
			d.Kind = orm.ManyToMany
			d.RelatedModel = "app.UserRole"
			d.RemoteKey = "id"
			d.MiddleModel = "app.UserRole"
			d.MiddleLocalKey = "user_id"
			d.MiddleRemoteKey = "role_id"
			d.InverseProperty = "Roles"
		}},
		{"非法字段名", func(reg *orm.Registry, d *Descriptor) {
			require.NoError(t, reg.RegisterMeta(&orm.ModelMeta{Name: "Weird", Namespace: "app",
				Fields: []orm.FieldMeta{{Name: "id"}, {Name: "user_id"}, {Name: "x; DROP"}}}))
			d.Kind = orm.ManyToMany
			d.RelatedModel = "app.Weird"
			d.RemoteKey = "id"
			d.MiddleModel = "app.UserRole"
			d.MiddleLocalKey = "user_id"
			d.MiddleRemoteKey = "role_id"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := newRegistry(t)
			client, _ := newMockClient(t)
			d := base
			tt.mutate(reg, &d)

			_, err := NewPlanner(reg, client).Plan(d, int64(7))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrPlan)
			var planErr *PlanError
			assert.ErrorAs(t, err, &planErr)
		})
	}
}

func TestIsNullKey(t *testing.T) {
	var typedNil *string
	var nilSlice []byte
	v := int64(5)
	nullPtr := &sql.NullInt64{}

	assert.True(t, IsNullKey(nil))
	assert.True(t, IsNullKey(typedNil))
	assert.True(t, IsNullKey(nilSlice))
	assert.True(t, IsNullKey(sql.NullString{}))
	assert.True(t, IsNullKey(nullPtr))

	assert.False(t, IsNullKey(int64(0)))
	assert.False(t, IsNullKey(""))
	assert.False(t, IsNullKey(&v))
	assert.False(t, IsNullKey(sql.NullInt64{Int64: 1, Valid: true}))
}

func TestPlanner_DuplicateMiddleFieldIsPlanError(t *testing.T) {
	reg := orm.NewRegistry()
	for _, m := range []*orm.ModelMeta{
		{Name: "Account", Namespace: "crm", Fields: []orm.FieldMeta{{Name: "id"}}},
		{Name: "Tag", Namespace: "crm", Fields: []orm.FieldMeta{{Name: "id"}, {Name: "label"}}},
		{Name: "AccountTag", Namespace: "crm", Fields: []orm.FieldMeta{{Name: "account_id"}, {Name: "tag_id"}, {Name: "account_id"}}},
	} {
		require.NoError(t, reg.RegisterMeta(m))
	}
	client, mock := newMockClient(t)

	d, err := NewResolver(reg, 0).Resolve("crm.Account", "account_tags",
		orm.RelationAnnotation{Kind: orm.ManyToMany, Model: "Tag", Middle: "AccountTag", RightMany: "tags"})
	require.NoError(t, err)

	_, err = NewPlanner(reg, client).Plan(d, int64(1))
	assert.ErrorIs(t, err, ErrPlan)
	assert.Contains(t, err.Error(), `"account_id" is listed more than once`)
	assert.NoError(t, mock.ExpectationsWereMet())
}
