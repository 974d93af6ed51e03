package relation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relgraph/data/db/dialect"
	"relgraph/data/orm"
	apperrors "relgraph/errors"
)

func TestInitializeRelation_OneToOne(t *testing.T) {
	loader, reg, mock := newMockLoader(t)
	mock.ExpectQuery(profileQuery).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "bio"}).AddRow(int64(3), int64(7), "gopher"))

	u := &User{ID: 7}
	err := loader.InitializeRelation(context.Background(), reg.MustWrap(u), "profile", annotation(t, reg, "app.User", "profile"))
	require.NoError(t, err)

	assert.Equal(t, &Profile{ID: 3, UserID: 7, Bio: "gopher"}, u.Profile)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitializeRelation_OneToOneDefault(t *testing.T) {
	loader, reg, mock := newMockLoader(t)
	mock.ExpectQuery(profileQuery).WithArgs(int64(8)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "bio"}))

	u := &User{ID: 8}
	err := loader.InitializeRelation(context.Background(), reg.MustWrap(u), "profile", annotation(t, reg, "app.User", "profile"))
	require.NoError(t, err)

	assert.Equal(t, &Profile{}, u.Profile, "no row yields a default instance")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitializeRelation_OneToManyOrder(t *testing.T) {
	loader, reg, mock := newMockLoader(t)
	mock.ExpectQuery(postsQuery).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "title"}).
			AddRow(int64(3), int64(7), "c").
			AddRow(int64(1), int64(7), "a").
			AddRow(int64(2), int64(7), "b"))

	u := &User{ID: 7}
	err := loader.InitializeRelation(context.Background(), reg.MustWrap(u), "posts", annotation(t, reg, "app.User", "posts"))
	require.NoError(t, err)

	require.Len(t, u.Posts, 3)
	assert.Equal(t, []*Post{
		{ID: 3, UserID: 7, Title: "c"},
		{ID: 1, UserID: 7, Title: "a"},
		{ID: 2, UserID: 7, Title: "b"},
	}, u.Posts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitializeRelation_OneToManyEmpty(t *testing.T) {
	loader, reg, mock := newMockLoader(t)
	mock.ExpectQuery(postsQuery).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "title"}))

	u := &User{ID: 7}
	err := loader.InitializeRelation(context.Background(), reg.MustWrap(u), "posts", annotation(t, reg, "app.User", "posts"))
	require.NoError(t, err)
	assert.NotNil(t, u.Posts)
	assert.Empty(t, u.Posts)
}

// User(7) 通过 UserRole 关联两个 Role
func TestInitializeRelation_ManyToManyScenario(t *testing.T) {
	loader, reg, mock := newMockLoader(t)
	mock.ExpectQuery(rolesQuery).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(rolesColumns).
			AddRow(int64(10), int64(7), int64(1), int64(1), "admin").
			AddRow(int64(11), int64(7), int64(2), int64(2), "editor"))

	u := &User{ID: 7}
	err := loader.InitializeRelation(context.Background(), reg.MustWrap(u), "user_roles", annotation(t, reg, "app.User", "user_roles"))
	require.NoError(t, err)

	assert.Equal(t, []*Role{{ID: 1, Name: "admin"}, {ID: 2, Name: "editor"}}, u.Roles)
	assert.Equal(t, []*UserRole{{ID: 10, UserID: 7, RoleID: 1}, {ID: 11, UserID: 7, RoleID: 2}}, u.UserRoles)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitializeRelation_ManyToManyNoDedup(t *testing.T) {
	loader, reg, mock := newMockLoader(t)
	mock.ExpectQuery(rolesQuery).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(rolesColumns).
			AddRow(int64(10), int64(7), int64(1), int64(1), "admin").
			AddRow(int64(11), int64(7), int64(2), int64(2), "editor").
			AddRow(int64(12), int64(7), int64(1), int64(1), "admin"))

	u := &User{ID: 7}
	err := loader.InitializeRelation(context.Background(), reg.MustWrap(u), "user_roles", annotation(t, reg, "app.User", "user_roles"))
	require.NoError(t, err)

	require.Len(t, u.UserRoles, 3)
	require.Len(t, u.Roles, 3)
	assert.Equal(t, u.Roles[0], u.Roles[2])
	assert.NotSame(t, u.Roles[0], u.Roles[2], "one instance per joined row")
}

func TestInitializeRelation_NullKey(t *testing.T) {
	reg := orm.NewRegistry()
	require.NoError(t, reg.RegisterMeta(&orm.ModelMeta{
		Name: "Account", Namespace: "crm",
		Fields: []orm.FieldMeta{{Name: "id"}, {Name: "name"}},
		Relations: []orm.RelationMeta{
			{Property: "contact", Annotation: orm.RelationAnnotation{Kind: orm.OneToOne, Model: "Contact"}},
			{Property: "notes", Annotation: orm.RelationAnnotation{Kind: orm.OneToMany, Model: "Note"}},
			{Property: "account_tags", Annotation: orm.RelationAnnotation{Kind: orm.ManyToMany, Model: "Tag", Middle: "AccountTag", RightMany: "tags"}},
		},
	}))
	for _, m := range []*orm.ModelMeta{
		{Name: "Contact", Namespace: "crm", Fields: []orm.FieldMeta{{Name: "id"}, {Name: "account_id"}}},
		{Name: "Note", Namespace: "crm", Fields: []orm.FieldMeta{{Name: "id"}, {Name: "account_id"}}},
		{Name: "Tag", Namespace: "crm", Fields: []orm.FieldMeta{{Name: "id"}, {Name: "label"}}},
		{Name: "AccountTag", Namespace: "crm", Fields: []orm.FieldMeta{{Name: "account_id"}, {Name: "tag_id"}}},
	} {
		require.NoError(t, reg.RegisterMeta(m))
	}

	client, mock := newMockClient(t)
	loader := NewLoader(client, reg, reg, WithConcurrency(3))

	owner := orm.NewEntity("crm.Account", map[string]any{"name": "acme"})
	require.NoError(t, loader.InitializeAll(context.Background(), owner))

	contact, ok := owner.GetField("contact")
	require.True(t, ok)
	assert.Equal(t, "crm.Contact", contact.(orm.IRecord).Model())
	assert.Empty(t, contact.(*orm.Entity).Fields())

	for prop, model := range map[string]string{"notes": "crm.Note", "account_tags": "crm.AccountTag", "tags": "crm.Tag"} {
		v, ok := owner.GetField(prop)
		require.True(t, ok, prop)
		coll := v.(*orm.Collection)
		assert.Equal(t, model, coll.Model())
		assert.Equal(t, 0, coll.Len())
	}
	assert.NoError(t, mock.ExpectationsWereMet(), "null owner key issues no query")
}

func TestInitializeRelation_AutoSelectDisabled(t *testing.T) {
	loader, reg, mock := newMockLoader(t)

	u := &User{ID: 7}
	err := loader.InitializeRelation(context.Background(), reg.MustWrap(u), "drafts", annotation(t, reg, "app.User", "drafts"))
	require.NoError(t, err)
	assert.Nil(t, u.Drafts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitializeRelation_QueryExecutionError(t *testing.T) {
	loader, reg, mock := newMockLoader(t)
	boom := errors.New("connection reset by peer")
	mock.ExpectQuery(rolesQuery).WithArgs(int64(7)).WillReturnError(boom)

	u := &User{ID: 7}
	err := loader.InitializeRelation(context.Background(), reg.MustWrap(u), "user_roles", annotation(t, reg, "app.User", "user_roles"))
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrQueryExecution)
	assert.ErrorIs(t, err, boom)
	var qe *QueryExecutionError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, "user_roles", qe.Property)
	assert.Equal(t, rolesQuery, qe.Query)
	assert.Equal(t, apperrors.ErrCodeQueryExecution, apperrors.GetErrorCode(err))

	assert.Nil(t, u.UserRoles, "failed property stays unassigned")
	assert.Nil(t, u.Roles)
}

func TestInitializeRelation_RowErrorLeavesPropertyUntouched(t *testing.T) {
	loader, reg, mock := newMockLoader(t)
	mock.ExpectQuery(postsQuery).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "title"}).
			AddRow(int64(1), int64(7), "a").
			AddRow(int64(2), int64(7), "b").
			RowError(1, errors.New("read timeout")))

	existing := []*Post{{ID: 99}}
	u := &User{ID: 7, Posts: existing}
	err := loader.InitializeRelation(context.Background(), reg.MustWrap(u), "posts", annotation(t, reg, "app.User", "posts"))
	assert.ErrorIs(t, err, ErrQueryExecution)
	assert.Equal(t, existing, u.Posts)
}

func TestInitializeRelation_CanceledContext(t *testing.T) {
	loader, reg, _ := newMockLoader(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	u := &User{ID: 7}
	err := loader.InitializeRelation(ctx, reg.MustWrap(u), "posts", annotation(t, reg, "app.User", "posts"))
	var qe *QueryExecutionError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, dialect.ErrorClassCanceled, qe.Class)
}

func TestInitializeRelation_InversePropertyMismatchRestores(t *testing.T) {
	type Group struct {
		ID        int64       `db:"id"`
		UserRoles []*UserRole `rel:"many_to_many,model=Role,middle=UserRole,right_many=Members,middle_left=user_id"`
		Members   []*Post
	}
	loader, reg, mock := newMockLoader(t)
	_, err := reg.Register(Group{}, orm.WithNamespace("app"))
	require.NoError(t, err)

	mock.ExpectQuery(rolesQuery).WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(rolesColumns).AddRow(int64(10), int64(1), int64(1), int64(1), "admin"))

	g := &Group{ID: 1}
	err = loader.InitializeRelation(context.Background(), reg.MustWrap(g), "user_roles", annotation(t, reg, "app.Group", "user_roles"))
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Nil(t, g.UserRoles, "middle collection is rolled back")
	assert.Nil(t, g.Members)
}

func TestInitializeAll_Sequential(t *testing.T) {
	loader, reg, mock := newMockLoader(t)
	mock.ExpectQuery(profileQuery).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "bio"}).AddRow(int64(3), int64(7), "gopher"))
	mock.ExpectQuery(postsQuery).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "title"}).AddRow(int64(1), int64(7), "a"))
	mock.ExpectQuery(rolesQuery).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(rolesColumns).AddRow(int64(10), int64(7), int64(1), int64(1), "admin"))

	u := &User{ID: 7}
	require.NoError(t, loader.InitializeAll(context.Background(), reg.MustWrap(u)))

	assert.Equal(t, "gopher", u.Profile.Bio)
	assert.Len(t, u.Posts, 1)
	assert.Len(t, u.Roles, 1)
	assert.Len(t, u.UserRoles, 1)
	assert.Nil(t, u.Drafts, "autoselect=false is skipped")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitializeRelation_InverseSameAsPropertyRejected(t *testing.T) {
	loader, _, mock := newMockLoader(t)

	owner := orm.NewEntity("app.User", map[string]any{"id": int64(7)})
	err := loader.InitializeRelation(context.Background(), owner, "user_roles",
		orm.RelationAnnotation{Kind: orm.ManyToMany, Model: "Role", Middle: "UserRole", RightMany: "user_roles"})
	assert.ErrorIs(t, err, ErrConfiguration)

	_, ok := owner.GetField("user_roles")
	assert.False(t, ok, "nothing assigned")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitializeAll_FailureStaysWithinProperty(t *testing.T) {
	loader, reg, mock := newMockLoader(t)
	mock.ExpectQuery(profileQuery).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "bio"}).AddRow(int64(3), int64(7), "gopher"))
	mock.ExpectQuery(postsQuery).WithArgs(int64(7)).WillReturnError(errors.New("boom"))
	mock.ExpectQuery(rolesQuery).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(rolesColumns).AddRow(int64(10), int64(7), int64(1), int64(1), "admin"))

	u := &User{ID: 7}
	err := loader.InitializeAll(context.Background(), reg.MustWrap(u))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQueryExecution)

	var qe *QueryExecutionError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, "posts", qe.Property)

	assert.Equal(t, "gopher", u.Profile.Bio)
	assert.Nil(t, u.Posts)
	assert.Equal(t, []*UserRole{{ID: 10, UserID: 7, RoleID: 1}}, u.UserRoles, "later sibling still initialized")
	assert.Equal(t, []*Role{{ID: 1, Name: "admin"}}, u.Roles)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// 并发时失败的属性不会取消仍在执行的兄弟查询
func TestInitializeAll_ConcurrentFailureDoesNotCancelSiblings(t *testing.T) {
	loader, reg, mock := newMockLoader(t, WithConcurrency(3))
	mock.MatchExpectationsInOrder(false)
	mock.ExpectQuery(profileQuery).WithArgs(int64(7)).WillDelayFor(100 * time.Millisecond).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "bio"}).AddRow(int64(3), int64(7), "gopher"))
	mock.ExpectQuery(postsQuery).WithArgs(int64(7)).WillReturnError(errors.New("boom"))
	mock.ExpectQuery(rolesQuery).WithArgs(int64(7)).WillDelayFor(100 * time.Millisecond).
		WillReturnRows(sqlmock.NewRows(rolesColumns).AddRow(int64(10), int64(7), int64(1), int64(1), "admin"))

	u := &User{ID: 7}
	err := loader.InitializeAll(context.Background(), reg.MustWrap(u))
	assert.ErrorIs(t, err, ErrQueryExecution)
	assert.NotErrorIs(t, err, ErrConfiguration)

	require.NotNil(t, u.Profile)
	assert.Equal(t, "gopher", u.Profile.Bio)
	assert.Nil(t, u.Posts)
	assert.Len(t, u.UserRoles, 1)
	assert.Len(t, u.Roles, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// 多个属性失败时全部返回
func TestInitializeAll_JoinsEveryFailure(t *testing.T) {
	loader, reg, mock := newMockLoader(t)
	mock.ExpectQuery(profileQuery).WithArgs(int64(7)).WillReturnError(errors.New("profile down"))
	mock.ExpectQuery(postsQuery).WithArgs(int64(7)).WillReturnError(errors.New("posts down"))
	mock.ExpectQuery(rolesQuery).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(rolesColumns))

	u := &User{ID: 7}
	err := loader.InitializeAll(context.Background(), reg.MustWrap(u))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "profile down")
	assert.Contains(t, err.Error(), "posts down")
	assert.Nil(t, u.Profile)
	assert.Nil(t, u.Posts)
	assert.NotNil(t, u.UserRoles)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoader_Events(t *testing.T) {
	var (
		mu     sync.Mutex
		events []InitEvent
	)
	collect := EventSinkFunc(func(_ context.Context, evt InitEvent) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, evt)
		return nil
	})
	failing := EventSinkFunc(func(context.Context, InitEvent) error { return errors.New("sink down") })

	loader, reg, mock := newMockLoader(t, WithEventSink(collect), WithEventSink(failing), WithEventSink(nil))
	mock.ExpectQuery(postsQuery).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "title"}).AddRow(int64(1), int64(7), "a").AddRow(int64(2), int64(7), "b"))

	u := &User{ID: 7}
	require.NoError(t, loader.InitializeRelation(context.Background(), reg.MustWrap(u), "posts", annotation(t, reg, "app.User", "posts")))

	require.Len(t, events, 1)
	evt := events[0]
	assert.NotEmpty(t, evt.LoadID)
	assert.Equal(t, "app.User", evt.Model)
	assert.Equal(t, "posts", evt.Property)
	assert.Equal(t, "one_to_many", evt.Kind)
	assert.Equal(t, 2, evt.Rows)
	assert.False(t, evt.Skipped)
	assert.Empty(t, evt.Err)
}

func TestLoader_ErrorNormalization(t *testing.T) {
	var events []InitEvent
	collect := EventSinkFunc(func(_ context.Context, evt InitEvent) error {
		events = append(events, evt)
		return nil
	})
	loader, reg, _ := newMockLoader(t, WithEventSink(collect))

	u := &User{ID: 7}
	err := loader.InitializeRelation(context.Background(), reg.MustWrap(u), "comments",
		orm.RelationAnnotation{Kind: orm.OneToMany, Model: "Comment"})
	require.Error(t, err)

	appErr, ok := apperrors.Normalize(err).(apperrors.IError)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeConfiguration, appErr.Code())
	assert.ErrorIs(t, appErr, ErrConfiguration)
	assert.Equal(t, "app.User", appErr.Details()["owner"])
	assert.Equal(t, "comments", appErr.Details()["property"])
	assert.Contains(t, appErr.Details()["reason"], "Comment")

	require.Len(t, events, 1)
	assert.Equal(t, string(apperrors.ErrCodeConfiguration), events[0].Code)
	assert.NotEmpty(t, events[0].Err)
}

func TestLoader_QueryErrorDetails(t *testing.T) {
	loader, reg, mock := newMockLoader(t)
	mock.ExpectQuery(postsQuery).WithArgs(int64(7)).WillReturnError(context.DeadlineExceeded)

	u := &User{ID: 7}
	err := loader.InitializeRelation(context.Background(), reg.MustWrap(u), "posts", annotation(t, reg, "app.User", "posts"))
	require.Error(t, err)

	appErr := apperrors.Normalize(err).(apperrors.IError)
	assert.Equal(t, apperrors.ErrCodeQueryExecution, appErr.Code())
	assert.Equal(t, string(dialect.ErrorClassTimeout), appErr.Details()["class"])
}
