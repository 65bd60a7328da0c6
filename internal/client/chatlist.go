package client

import (
	"context"
	"sync"

	"github.com/chirino/conversation-service/internal/model"
	"github.com/chirino/conversation-service/internal/realtime"
)

// ChatList is the in-memory copy of the user's conversations.
type ChatList struct {
	api   *API
	mu    sync.RWMutex
	chats []model.ConversationView
}

// NewChatList creates an empty list backed by api.
func NewChatList(api *API) *ChatList {
	return &ChatList{api: api}
}

// Refresh replaces the list with the server's current view.
func (l *ChatList) Refresh(ctx context.Context) error {
	chats, err := l.api.ListConversations(ctx)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.chats = chats
	l.mu.Unlock()
	return nil
}

// Prepend puts a conversation at the head of the list.
func (l *ChatList) Prepend(view model.ConversationView) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.chats = append([]model.ConversationView{view}, l.chats...)
}

// Upsert replaces the conversation with the same id and moves it to the
// head, or prepends it when absent.
func (l *ChatList) Upsert(view model.ConversationView) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rest := make([]model.ConversationView, 0, len(l.chats)+1)
	rest = append(rest, view)
	for _, c := range l.chats {
		if c.ID != view.ID {
			rest = append(rest, c)
		}
	}
	l.chats = rest
}

// Apply folds an incoming new-message event into the list. The conversation
// is re-read so unread counts are current; when that fails the cached entry
// only gets the new preview.
func (l *ChatList) Apply(ctx context.Context, msg *realtime.NewMessage) (model.ConversationView, error) {
	view, err := l.api.GetConversation(ctx, msg.ConversationID)
	if err == nil {
		view.LatestMessage = msg.Text
		l.Upsert(*view)
		return *view, nil
	}
	l.mu.RLock()
	var cached *model.ConversationView
	for i := range l.chats {
		if l.chats[i].ID == msg.ConversationID {
			c := l.chats[i]
			cached = &c
			break
		}
	}
	l.mu.RUnlock()
	if cached == nil {
		return model.ConversationView{}, err
	}
	cached.LatestMessage = msg.Text
	l.Upsert(*cached)
	return *cached, nil
}

// Snapshot returns a copy of the list.
func (l *ChatList) Snapshot() []model.ConversationView {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]model.ConversationView, len(l.chats))
	copy(out, l.chats)
	return out
}
