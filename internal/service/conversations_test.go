package service_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/chirino/conversation-service/internal/config"
	"github.com/chirino/conversation-service/internal/model"
	"github.com/chirino/conversation-service/internal/plugin/cache/local"
	"github.com/chirino/conversation-service/internal/plugin/store/gormstore"
	"github.com/chirino/conversation-service/internal/plugin/store/sqlite"
	registrymigrate "github.com/chirino/conversation-service/internal/registry/migrate"
	registrystore "github.com/chirino/conversation-service/internal/registry/store"
	"github.com/chirino/conversation-service/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupService(t *testing.T) (*service.ConversationService, registrystore.ConversationStore, context.Context) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DatastoreType = "sqlite"
	cfg.DBURL = filepath.Join(t.TempDir(), "service.db")
	ctx := config.WithContext(t.Context(), &cfg)
	require.NoError(t, registrymigrate.RunAll(ctx))

	db, err := sqlite.Open(&cfg)
	require.NoError(t, err)
	store := gormstore.New(db)
	for _, u := range []model.User{
		{ID: "alice", Name: "Alice", Email: "alice@example.com", Password: "x"},
		{ID: "bob", Name: "Bob", Email: "bob@example.com", Password: "x"},
		{ID: "carol", Name: "Carol", Email: "carol@example.com", Password: "x"},
		{ID: "dave", Name: "Dave", Email: "dave@example.com", Password: "x"},
	} {
		require.NoError(t, store.PutUser(ctx, u))
	}
	return service.NewConversationService(store, nil, 0), store, ctx
}

func requireErrorAs[T error](t *testing.T, err error) T {
	t.Helper()
	var target T
	require.ErrorAs(t, err, &target)
	return target
}

func TestCreateDirectIsIdempotent(t *testing.T) {
	svc, _, ctx := setupService(t)

	first, created, err := svc.CreateDirect(ctx, "alice", []string{"bob"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.False(t, first.IsGroup)
	require.Len(t, first.Members, 1)
	assert.Equal(t, "bob", first.Members[0].ID)
	assert.Equal(t, "Bob", first.Members[0].Name)
	assert.Len(t, first.UnreadCounts, 2)

	second, created, err := svc.CreateDirect(ctx, "bob", []string{"alice", "bob"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "alice", second.Members[0].ID)
}

func TestCreateDirectValidation(t *testing.T) {
	svc, _, ctx := setupService(t)

	for _, members := range [][]string{nil, {"alice"}, {"bob", "carol"}, {" "}} {
		_, _, err := svc.CreateDirect(ctx, "alice", members)
		verr := requireErrorAs[*registrystore.ValidationError](t, err)
		assert.Equal(t, "Please fill all the fields", verr.Message)
	}
}

func TestGetPopulatesAllMembers(t *testing.T) {
	svc, _, ctx := setupService(t)

	group, err := svc.CreateGroup(ctx, "alice", "Trip", []string{"bob", "carol"})
	require.NoError(t, err)

	got, err := svc.Get(ctx, group.ID)
	require.NoError(t, err)
	assert.True(t, got.IsGroup)
	assert.Equal(t, "Trip", got.Name)
	assert.Equal(t, model.DefaultGroupPic, got.GroupPic)
	require.NotNil(t, got.GroupAdmin)
	assert.Equal(t, "Alice", got.GroupAdmin.Name)
	ids := make([]string, 0, len(got.Members))
	for _, m := range got.Members {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"bob", "carol", "alice"}, ids)

	_, err = svc.Get(ctx, "missing")
	assert.True(t, service.IsNotFound(err))
}

func TestUnknownUsersKeepTheirID(t *testing.T) {
	svc, _, ctx := setupService(t)

	view, _, err := svc.CreateDirect(ctx, "alice", []string{"zed"})
	require.NoError(t, err)
	require.Len(t, view.Members, 1)
	assert.Equal(t, model.UserRef{ID: "zed"}, view.Members[0])
}

func TestCreateGroupValidation(t *testing.T) {
	svc, _, ctx := setupService(t)

	_, err := svc.CreateGroup(ctx, "alice", "", []string{"bob"})
	verr := requireErrorAs[*registrystore.ValidationError](t, err)
	assert.Equal(t, "Please fill all fields", verr.Message)

	_, err = svc.CreateGroup(ctx, "alice", "Trip", nil)
	requireErrorAs[*registrystore.ValidationError](t, err)

	_, err = svc.CreateGroup(ctx, "alice", "Solo", []string{"alice"})
	requireErrorAs[*registrystore.ValidationError](t, err)
}

func TestGroupOperations(t *testing.T) {
	svc, _, ctx := setupService(t)

	group, err := svc.CreateGroup(ctx, "alice", "Trip", []string{"bob"})
	require.NoError(t, err)

	renamed, err := svc.RenameGroup(ctx, group.ID, "Road trip")
	require.NoError(t, err)
	assert.Equal(t, "Road trip", renamed.Name)

	added, err := svc.AddMember(ctx, group.ID, "carol")
	require.NoError(t, err)
	assert.Len(t, added.Members, 3)

	again, err := svc.AddMember(ctx, group.ID, "carol")
	require.NoError(t, err)
	assert.Len(t, again.Members, 3)

	removed, err := svc.RemoveMember(ctx, group.ID, "bob")
	require.NoError(t, err)
	assert.Len(t, removed.Members, 2)

	_, err = svc.RemoveMember(ctx, group.ID, "alice")
	requireErrorAs[*registrystore.ValidationError](t, err)

	_, err = svc.RenameGroup(ctx, group.ID, "  ")
	requireErrorAs[*registrystore.ValidationError](t, err)
}

func TestGroupOperationsRejectDirect(t *testing.T) {
	svc, _, ctx := setupService(t)

	direct, _, err := svc.CreateDirect(ctx, "alice", []string{"bob"})
	require.NoError(t, err)

	_, err = svc.RenameGroup(ctx, direct.ID, "x")
	verr := requireErrorAs[*registrystore.ValidationError](t, err)
	assert.Equal(t, "Not a group chat", verr.Message)

	_, err = svc.AddMember(ctx, direct.ID, "carol")
	requireErrorAs[*registrystore.ValidationError](t, err)

	_, err = svc.RemoveMember(ctx, direct.ID, "bob")
	requireErrorAs[*registrystore.ValidationError](t, err)

	_, err = svc.RenameGroup(ctx, "missing", "x")
	assert.True(t, service.IsNotFound(err))
}

func TestUnreadCountsAndMarkRead(t *testing.T) {
	svc, _, ctx := setupService(t)

	group, err := svc.CreateGroup(ctx, "alice", "Trip", []string{"bob", "carol"})
	require.NoError(t, err)

	_, err = svc.RecordMessage(ctx, group.ID, "alice", "hello")
	require.NoError(t, err)
	conv, err := svc.RecordMessage(ctx, group.ID, "bob", "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi", conv.LatestMessage)

	view, err := svc.Get(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, view.UnreadFor("alice"))
	assert.Equal(t, 1, view.UnreadFor("bob"))
	assert.Equal(t, 2, view.UnreadFor("carol"))

	read, err := svc.MarkRead(ctx, "carol", group.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, read.UnreadFor("carol"))
	assert.Equal(t, 1, read.UnreadFor("bob"))
	for _, m := range read.Members {
		assert.NotEqual(t, "carol", m.ID)
	}

	_, err = svc.MarkRead(ctx, "dave", group.ID)
	requireErrorAs[*registrystore.ForbiddenError](t, err)

	_, err = svc.RecordMessage(ctx, group.ID, "dave", "let me in")
	requireErrorAs[*registrystore.ForbiddenError](t, err)

	_, err = svc.RecordMessage(ctx, group.ID, "alice", "   ")
	requireErrorAs[*registrystore.ValidationError](t, err)
}

func TestListForUserOrdersByActivity(t *testing.T) {
	svc, _, ctx := setupService(t)

	empty, err := svc.ListForUser(ctx, "dave")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	direct, _, err := svc.CreateDirect(ctx, "alice", []string{"bob"})
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	group, err := svc.CreateGroup(ctx, "carol", "Trip", []string{"alice"})
	require.NoError(t, err)

	list, err := svc.ListForUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, group.ID, list[0].ID)
	assert.Equal(t, direct.ID, list[1].ID)

	time.Sleep(5 * time.Millisecond)
	_, err = svc.RecordMessage(ctx, direct.ID, "bob", "ping")
	require.NoError(t, err)

	list, err = svc.ListForUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, direct.ID, list[0].ID)
	assert.Equal(t, "ping", list[0].LatestMessage)
	assert.Equal(t, 1, list[0].UnreadFor("alice"))
}

func TestUserResolverReadsThroughCache(t *testing.T) {
	_, store, ctx := setupService(t)

	cache, err := local.New(1000, time.Minute)
	require.NoError(t, err)
	t.Cleanup(cache.Close)

	resolver := service.NewUserResolver(store, cache, time.Minute)
	users, err := resolver.Resolve(ctx, []string{"alice", "bob", "nobody", "alice"})
	require.NoError(t, err)
	assert.Len(t, users, 2)

	cached, err := cache.GetMany(ctx, []string{"alice", "bob"})
	require.NoError(t, err)
	assert.Equal(t, "Alice", cached["alice"].Name)

	// A profile served from the cache wins over the store until it expires.
	require.NoError(t, store.PutUser(ctx, model.User{ID: "alice", Name: "Alice Renamed"}))
	users, err = resolver.Resolve(ctx, []string{"alice"})
	require.NoError(t, err)
	assert.Equal(t, "Alice", users["alice"].Name)
}
