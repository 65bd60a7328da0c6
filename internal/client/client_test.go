package client_test

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/chirino/conversation-service/internal/client"
	"github.com/chirino/conversation-service/internal/config"
	"github.com/chirino/conversation-service/internal/model"
	"github.com/chirino/conversation-service/internal/plugin/route/conversations"
	"github.com/chirino/conversation-service/internal/plugin/route/socket"
	"github.com/chirino/conversation-service/internal/plugin/store/gormstore"
	"github.com/chirino/conversation-service/internal/plugin/store/sqlite"
	"github.com/chirino/conversation-service/internal/realtime"
	registrymigrate "github.com/chirino/conversation-service/internal/registry/migrate"
	"github.com/chirino/conversation-service/internal/security"
	"github.com/chirino/conversation-service/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T) string {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Mode = config.ModeTesting
	cfg.DatastoreType = "sqlite"
	cfg.DBURL = filepath.Join(t.TempDir(), "client.db")
	ctx := config.WithContext(t.Context(), &cfg)
	require.NoError(t, registrymigrate.RunAll(ctx))

	db, err := sqlite.Open(&cfg)
	require.NoError(t, err)
	store := gormstore.New(db)
	for _, u := range []model.User{
		{ID: "me", Name: "Me"},
		{ID: "ann", Name: "Ann"},
		{ID: "bob", Name: "Bob"},
	} {
		require.NoError(t, store.PutUser(ctx, u))
	}

	svc := service.NewConversationService(store, nil, 0)
	hub := realtime.NewHub(realtime.HubOptions{SendBuffer: 16, Recorder: svc})
	auth := security.AuthMiddleware(security.NewTokenResolver(&cfg))

	gin.SetMode(gin.TestMode)
	router := gin.New()
	conversations.MountRoutes(router, svc, auth)
	socket.MountRoutes(router, hub, auth, &cfg)

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return srv.URL
}

func TestGroupDraftSubmitPrependsToChatList(t *testing.T) {
	base := startServer(t)
	ctx := t.Context()
	api := client.NewAPI(base, "me")

	_, err := api.CreateDirect(ctx, "me", "ann")
	require.NoError(t, err)
	_, err = api.CreateDirect(ctx, "me", "bob")
	require.NoError(t, err)

	list := client.NewChatList(api)
	require.NoError(t, list.Refresh(ctx))
	friends := client.FriendsOf(list.Snapshot(), "me")
	require.Len(t, friends, 2)

	draft := client.NewGroupDraft(api, list, "me")
	draft.SetName("Weekend")
	for _, f := range friends {
		require.NoError(t, draft.Add(f))
	}
	group, err := draft.Submit(ctx)
	require.NoError(t, err)
	assert.True(t, group.IsGroup)
	assert.Len(t, group.Members, 3)

	snap := list.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, group.ID, snap[0].ID)
	assert.Empty(t, draft.Selected())
}

func TestAPIErrorsCarryTheEnvelope(t *testing.T) {
	base := startServer(t)
	api := client.NewAPI(base, "me")

	_, err := api.GetConversation(t.Context(), "missing")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.Status)
	assert.Equal(t, "not_found", apiErr.Code)

	_, err = client.NewAPI(base, "").ListConversations(t.Context())
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 401, apiErr.Status)
}

func TestBroadcastOverSocketUpdatesUnreadCounts(t *testing.T) {
	base := startServer(t)
	ctx := t.Context()
	me := client.NewAPI(base, "me")
	ann := client.NewAPI(base, "ann")

	direct, err := me.CreateDirect(ctx, "ann")
	require.NoError(t, err)

	annSocket, err := client.DialSocket(ctx, ann)
	require.NoError(t, err)
	defer annSocket.Close()
	meSocket, err := client.DialSocket(ctx, me)
	require.NoError(t, err)
	defer meSocket.Close()

	list := client.NewChatList(me)
	require.NoError(t, list.Refresh(ctx))

	// A frame ann sends to herself comes back only once her socket is registered.
	recvCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, annSocket.Emit(recvCtx, realtime.EventNewMessage, realtime.NewMessage{Receiver: "ann", Text: "ready"}))
	ready, err := annSocket.Receive(recvCtx)
	require.NoError(t, err)
	require.Equal(t, "ready", ready.Text)

	b := &client.Broadcaster{Emitter: meSocket}
	sent, err := b.Broadcast(ctx, list.Snapshot(), "me", "hello")
	require.NoError(t, err)
	require.Equal(t, 1, sent)

	got, err := annSocket.Receive(recvCtx)
	require.NoError(t, err)
	assert.Equal(t, direct.ID, got.ConversationID)
	assert.Equal(t, "me", got.Sender)
	assert.Equal(t, "hello", got.Text)

	view, err := ann.GetConversation(ctx, direct.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, view.UnreadFor("ann"))
	assert.Equal(t, "hello", view.LatestMessage)

	read, err := ann.MarkRead(ctx, direct.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, read.UnreadFor("ann"))
}

func TestApplyMovesConversationToHead(t *testing.T) {
	base := startServer(t)
	ctx := t.Context()
	me := client.NewAPI(base, "me")
	ann := client.NewAPI(base, "ann")

	withAnn, err := me.CreateDirect(ctx, "ann")
	require.NoError(t, err)
	withBob, err := me.CreateDirect(ctx, "bob")
	require.NoError(t, err)

	list := client.NewChatList(me)
	require.NoError(t, list.Refresh(ctx))
	require.Len(t, list.Snapshot(), 2)

	meSocket, err := client.DialSocket(ctx, me)
	require.NoError(t, err)
	defer meSocket.Close()
	annSocket, err := client.DialSocket(ctx, ann)
	require.NoError(t, err)
	defer annSocket.Close()

	recvCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, meSocket.Emit(recvCtx, realtime.EventNewMessage, realtime.NewMessage{Receiver: "me", Text: "ready"}))
	ready, err := meSocket.Receive(recvCtx)
	require.NoError(t, err)
	require.Equal(t, "ready", ready.Text)

	require.NoError(t, annSocket.Emit(recvCtx, realtime.EventNewMessage, realtime.NewMessage{
		ConversationID: withAnn.ID,
		Sender:         "ann",
		Receiver:       "me",
		Text:           "hi",
	}))
	msg, err := meSocket.Receive(recvCtx)
	require.NoError(t, err)

	view, err := list.Apply(recvCtx, msg)
	require.NoError(t, err)
	assert.Equal(t, withAnn.ID, view.ID)
	assert.Equal(t, "hi", view.LatestMessage)

	snap := list.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, withAnn.ID, snap[0].ID)
	assert.Equal(t, "hi", snap[0].LatestMessage)
	assert.Equal(t, withBob.ID, snap[1].ID)

	_, err = list.Apply(recvCtx, &realtime.NewMessage{ConversationID: "missing", Text: "lost"})
	require.Error(t, err)
	assert.Len(t, list.Snapshot(), 2)
}
