package metrics

import (
	"context"
	"time"

	"github.com/chirino/conversation-service/internal/model"
	"github.com/chirino/conversation-service/internal/registry/store"
	"github.com/chirino/conversation-service/internal/security"
)

// Wrap returns a ConversationStore that records store latency for every operation.
func Wrap(inner store.ConversationStore) store.ConversationStore {
	return &metricsStore{inner: inner}
}

type metricsStore struct {
	inner store.ConversationStore
}

func observe(op string, start time.Time) { security.ObserveStoreOp(op, start) }

func (m *metricsStore) PutUser(ctx context.Context, user model.User) error {
	defer observe("put_user", time.Now())
	return m.inner.PutUser(ctx, user)
}

func (m *metricsStore) GetUsers(ctx context.Context, ids []string) (map[string]model.User, error) {
	defer observe("get_users", time.Now())
	return m.inner.GetUsers(ctx, ids)
}

func (m *metricsStore) FindOrCreateDirect(ctx context.Context, a, b string) (*model.Conversation, bool, error) {
	defer observe("find_or_create_direct", time.Now())
	return m.inner.FindOrCreateDirect(ctx, a, b)
}

func (m *metricsStore) CreateGroup(ctx context.Context, conv *model.Conversation) (*model.Conversation, error) {
	defer observe("create_group", time.Now())
	return m.inner.CreateGroup(ctx, conv)
}

func (m *metricsStore) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	defer observe("get_conversation", time.Now())
	return m.inner.GetConversation(ctx, id)
}

func (m *metricsStore) ListConversations(ctx context.Context, userID string) ([]model.Conversation, error) {
	defer observe("list_conversations", time.Now())
	return m.inner.ListConversations(ctx, userID)
}

func (m *metricsStore) RenameGroup(ctx context.Context, id, name string) (*model.Conversation, error) {
	defer observe("rename_group", time.Now())
	return m.inner.RenameGroup(ctx, id, name)
}

func (m *metricsStore) AddMember(ctx context.Context, id, userID string) (*model.Conversation, error) {
	defer observe("add_member", time.Now())
	return m.inner.AddMember(ctx, id, userID)
}

func (m *metricsStore) RemoveMember(ctx context.Context, id, userID string) (*model.Conversation, error) {
	defer observe("remove_member", time.Now())
	return m.inner.RemoveMember(ctx, id, userID)
}

func (m *metricsStore) RecordMessage(ctx context.Context, id, senderID, text string) (*model.Conversation, error) {
	defer observe("record_message", time.Now())
	return m.inner.RecordMessage(ctx, id, senderID, text)
}

func (m *metricsStore) ResetUnread(ctx context.Context, id, userID string) (*model.Conversation, error) {
	defer observe("reset_unread", time.Now())
	return m.inner.ResetUnread(ctx, id, userID)
}

var _ store.ConversationStore = (*metricsStore)(nil)
