package store

import (
	"context"
	"fmt"

	"github.com/chirino/conversation-service/internal/model"
)

// ConversationStore is the persistence contract of the conversation service.
// Implementations enforce the direct-key uniqueness and keep each member's
// unread counter on the member entry itself.
type ConversationStore interface {
	// PutUser upserts a profile. Profiles are owned by the auth system; this
	// exists for migrations, seeding and tests.
	PutUser(ctx context.Context, user model.User) error
	// GetUsers resolves the given ids. Unknown ids are absent from the result.
	GetUsers(ctx context.Context, ids []string) (map[string]model.User, error)

	// FindOrCreateDirect returns the direct conversation between a and b,
	// creating it when absent. created reports whether this call inserted it.
	FindOrCreateDirect(ctx context.Context, a, b string) (conv *model.Conversation, created bool, err error)
	// CreateGroup persists a new group conversation built by model.NewGroup.
	CreateGroup(ctx context.Context, conv *model.Conversation) (*model.Conversation, error)
	// GetConversation returns *NotFoundError for unknown ids.
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	// ListConversations returns every conversation containing userID ordered
	// by UpdatedAt descending.
	ListConversations(ctx context.Context, userID string) ([]model.Conversation, error)

	// RenameGroup, AddMember and RemoveMember only touch group conversations.
	// They return *NotFoundError when no group with that id exists.
	RenameGroup(ctx context.Context, id, name string) (*model.Conversation, error)
	// AddMember is a no-op when userID is already a member.
	AddMember(ctx context.Context, id, userID string) (*model.Conversation, error)
	// RemoveMember is a no-op when userID is not a member.
	RemoveMember(ctx context.Context, id, userID string) (*model.Conversation, error)

	// RecordMessage sets the latest message preview and increments the unread
	// counter of every member except senderID.
	RecordMessage(ctx context.Context, id, senderID, text string) (*model.Conversation, error)
	// ResetUnread sets the unread counter of userID to zero.
	ResetUnread(ctx context.Context, id, userID string) (*model.Conversation, error)
}

// Loader creates a ConversationStore from config.
type Loader func(ctx context.Context) (ConversationStore, error)

// Plugin represents a store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown store %q; valid: %v", name, Names())
}
