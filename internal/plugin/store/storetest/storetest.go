// Package storetest holds behaviour tests shared by every ConversationStore
// implementation. Each store package runs them against its own backend.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/chirino/conversation-service/internal/model"
	registrystore "github.com/chirino/conversation-service/internal/registry/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a store with an empty, migrated schema.
type Factory func(t *testing.T) (registrystore.ConversationStore, context.Context)

// Run executes the shared suite.
func Run(t *testing.T, newStore Factory) {
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore) })
	t.Run("FindOrCreateDirect", func(t *testing.T) { testFindOrCreateDirect(t, newStore) })
	t.Run("FindOrCreateDirectConcurrent", func(t *testing.T) { testFindOrCreateDirectConcurrent(t, newStore) })
	t.Run("GroupLifecycle", func(t *testing.T) { testGroupLifecycle(t, newStore) })
	t.Run("GroupOpsRejectDirect", func(t *testing.T) { testGroupOpsRejectDirect(t, newStore) })
	t.Run("ListOrdering", func(t *testing.T) { testListOrdering(t, newStore) })
	t.Run("UnreadCounters", func(t *testing.T) { testUnreadCounters(t, newStore) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, newStore) })
}

// uid returns a user id unique to this run so suites can share a database.
func uid(name string) string {
	return name + "-" + uuid.NewString()[:8]
}

func requireNotFound(t *testing.T, err error) {
	t.Helper()
	var nf *registrystore.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func testUsers(t *testing.T, newStore Factory) {
	s, ctx := newStore(t)
	alice := model.User{ID: uid("alice"), Name: "Alice", Email: "alice@example.com", Phone: "555-0100", Password: "hash"}
	require.NoError(t, s.PutUser(ctx, alice))
	alice.Name = "Alice A."
	require.NoError(t, s.PutUser(ctx, alice))

	got, err := s.GetUsers(ctx, []string{alice.ID, "missing"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Alice A.", got[alice.ID].Name)
	assert.Equal(t, "alice@example.com", got[alice.ID].Email)

	got, err = s.GetUsers(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testFindOrCreateDirect(t *testing.T, newStore Factory) {
	s, ctx := newStore(t)
	a, b := uid("a"), uid("b")

	first, created, err := s.FindOrCreateDirect(ctx, a, b)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, model.KindDirect, first.Kind)
	assert.Nil(t, first.Group)
	assert.Equal(t, []string{a, b}, first.MemberIDs())
	for _, m := range first.Members {
		assert.Zero(t, m.UnreadCount)
	}

	second, created, err := s.FindOrCreateDirect(ctx, b, a)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.MemberIDs(), second.MemberIDs())
}

func testFindOrCreateDirectConcurrent(t *testing.T, newStore Factory) {
	s, ctx := newStore(t)
	a, b := uid("a"), uid("b")

	const n = 8
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			x, y := a, b
			if i%2 == 1 {
				x, y = b, a
			}
			c, _, err := s.FindOrCreateDirect(ctx, x, y)
			errs[i] = err
			if c != nil {
				ids[i] = c.ID
			}
		}(i)
	}
	wg.Wait()
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	list, err := s.ListConversations(ctx, a)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func newGroup(t *testing.T, s registrystore.ConversationStore, ctx context.Context, name, admin string, members ...string) *model.Conversation {
	t.Helper()
	draft, err := model.NewGroup(name, admin, members, time.Now().UTC())
	require.NoError(t, err)
	g, err := s.CreateGroup(ctx, draft)
	require.NoError(t, err)
	return g
}

func testGroupLifecycle(t *testing.T, newStore Factory) {
	s, ctx := newStore(t)
	a, b, c, d := uid("a"), uid("b"), uid("c"), uid("d")

	g := newGroup(t, s, ctx, "Trip", c, a, b)
	require.True(t, g.IsGroup())
	assert.Equal(t, "Trip", g.Group.Name)
	assert.Equal(t, c, g.Group.AdminID)
	assert.Equal(t, model.DefaultGroupPic, g.Group.Pic)
	assert.Equal(t, []string{a, b, c}, g.MemberIDs())

	renamed, err := s.RenameGroup(ctx, g.ID, "Holiday")
	require.NoError(t, err)
	assert.Equal(t, "Holiday", renamed.Group.Name)

	added, err := s.AddMember(ctx, g.ID, d)
	require.NoError(t, err)
	assert.Equal(t, []string{a, b, c, d}, added.MemberIDs())
	assert.Len(t, added.Members, 4)

	again, err := s.AddMember(ctx, g.ID, d)
	require.NoError(t, err)
	assert.Equal(t, added.MemberIDs(), again.MemberIDs())

	removed, err := s.RemoveMember(ctx, g.ID, d)
	require.NoError(t, err)
	assert.Equal(t, []string{a, b, c}, removed.MemberIDs())

	noop, err := s.RemoveMember(ctx, g.ID, uid("stranger"))
	require.NoError(t, err)
	assert.Equal(t, []string{a, b, c}, noop.MemberIDs())

	fetched, err := s.GetConversation(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, "Holiday", fetched.Group.Name)
	require.NoError(t, fetched.Validate())
}

func testGroupOpsRejectDirect(t *testing.T, newStore Factory) {
	s, ctx := newStore(t)
	direct, _, err := s.FindOrCreateDirect(ctx, uid("a"), uid("b"))
	require.NoError(t, err)

	_, err = s.RenameGroup(ctx, direct.ID, "nope")
	requireNotFound(t, err)
	_, err = s.AddMember(ctx, direct.ID, uid("d"))
	requireNotFound(t, err)
	_, err = s.RemoveMember(ctx, direct.ID, direct.Members[0].UserID)
	requireNotFound(t, err)

	unchanged, err := s.GetConversation(ctx, direct.ID)
	require.NoError(t, err)
	assert.Len(t, unchanged.Members, 2)
}

func testListOrdering(t *testing.T, newStore Factory) {
	s, ctx := newStore(t)
	me := uid("me")

	empty, err := s.ListConversations(ctx, me)
	require.NoError(t, err)
	assert.Empty(t, empty)

	first, _, err := s.FindOrCreateDirect(ctx, me, uid("x"))
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	second := newGroup(t, s, ctx, "Team", me, uid("y"))
	time.Sleep(5 * time.Millisecond)
	newGroup(t, s, ctx, "Other", uid("z"), uid("w"))

	list, err := s.ListConversations(ctx, me)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)

	time.Sleep(5 * time.Millisecond)
	_, err = s.RecordMessage(ctx, first.ID, me, "bump")
	require.NoError(t, err)
	list, err = s.ListConversations(ctx, me)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	for i := 1; i < len(list); i++ {
		assert.False(t, list[i].UpdatedAt.After(list[i-1].UpdatedAt))
	}
}

func testUnreadCounters(t *testing.T, newStore Factory) {
	s, ctx := newStore(t)
	a, b, c := uid("a"), uid("b"), uid("c")
	g := newGroup(t, s, ctx, "Chat", a, b, c)

	_, err := s.RecordMessage(ctx, g.ID, a, "hello")
	require.NoError(t, err)
	updated, err := s.RecordMessage(ctx, g.ID, b, "hi")
	require.NoError(t, err)

	assert.Equal(t, "hi", updated.LatestMessage)
	counts := map[string]int{}
	for _, m := range updated.Members {
		counts[m.UserID] = m.UnreadCount
	}
	assert.Equal(t, map[string]int{a: 1, b: 1, c: 2}, counts)

	reset, err := s.ResetUnread(ctx, g.ID, c)
	require.NoError(t, err)
	assert.Zero(t, reset.Members[reset.MemberIndex(c)].UnreadCount)
	assert.Equal(t, 1, reset.Members[reset.MemberIndex(a)].UnreadCount)
}

func testNotFound(t *testing.T, newStore Factory) {
	s, ctx := newStore(t)
	missing := uuid.NewString()

	_, err := s.GetConversation(ctx, missing)
	requireNotFound(t, err)
	_, err = s.RenameGroup(ctx, missing, "x")
	requireNotFound(t, err)
	_, err = s.AddMember(ctx, missing, "u")
	requireNotFound(t, err)
	_, err = s.RemoveMember(ctx, missing, "u")
	requireNotFound(t, err)
	_, err = s.RecordMessage(ctx, missing, "u", "x")
	requireNotFound(t, err)
	_, err = s.ResetUnread(ctx, missing, "u")
	requireNotFound(t, err)
}
