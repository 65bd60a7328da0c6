package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/conversation-service/internal/model"
	registrycache "github.com/chirino/conversation-service/internal/registry/cache"
	registrystore "github.com/chirino/conversation-service/internal/registry/store"
)

// Validation messages shown to API clients.
const (
	msgFillAllFields = "Please fill all the fields"
	msgNeedMembers   = "Please fill all fields"
	msgEmptyMessage  = "Message text is required"
)

// ConversationService applies the business rules around the store: argument
// validation, group-only checks and populate of member profiles.
type ConversationService struct {
	store registrystore.ConversationStore
	users *UserResolver
}

// NewConversationService creates a service. cache may be nil.
func NewConversationService(store registrystore.ConversationStore, cache registrycache.UserCache, cacheTTL time.Duration) *ConversationService {
	return &ConversationService{
		store: store,
		users: NewUserResolver(store, cache, cacheTTL),
	}
}

// Users returns the profile resolver shared with the realtime relay.
func (s *ConversationService) Users() *UserResolver {
	return s.users
}

// CreateDirect returns the direct conversation between the caller and the one
// other id in memberIDs, creating it on first use. The caller is left out of
// the populated members.
func (s *ConversationService) CreateDirect(ctx context.Context, callerID string, memberIDs []string) (*model.ConversationView, bool, error) {
	ids := model.UniqueIDs(append(append([]string{}, memberIDs...), callerID))
	if len(ids) != 2 || !slices.Contains(ids, callerID) {
		return nil, false, &registrystore.ValidationError{Field: "members", Message: msgFillAllFields}
	}
	other := ids[0]
	if other == callerID {
		other = ids[1]
	}
	conv, created, err := s.store.FindOrCreateDirect(ctx, callerID, other)
	if err != nil {
		return nil, false, err
	}
	if created {
		log.Debug("Created direct conversation", "id", conv.ID)
	}
	view, err := s.populateOne(ctx, conv, callerID)
	return view, created, err
}

// Get returns one conversation with all members populated.
func (s *ConversationService) Get(ctx context.Context, id string) (*model.ConversationView, error) {
	if strings.TrimSpace(id) == "" {
		return nil, &registrystore.ValidationError{Field: "id", Message: "conversation id is required"}
	}
	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.populateOne(ctx, conv, "")
}

// ListForUser returns every conversation the caller belongs to, most
// recently active first.
func (s *ConversationService) ListForUser(ctx context.Context, callerID string) ([]model.ConversationView, error) {
	convs, err := s.store.ListConversations(ctx, callerID)
	if err != nil {
		return nil, err
	}
	model.SortByActivity(convs)
	return s.populate(ctx, convs, callerID)
}

// CreateGroup creates a group administered by the caller.
func (s *ConversationService) CreateGroup(ctx context.Context, callerID, name string, memberIDs []string) (*model.ConversationView, error) {
	name = strings.TrimSpace(name)
	members := model.UniqueIDs(memberIDs)
	if name == "" || len(members) == 0 {
		return nil, &registrystore.ValidationError{Field: "members", Message: msgNeedMembers}
	}
	conv, err := model.NewGroup(name, callerID, members, time.Now().UTC())
	if err != nil {
		return nil, &registrystore.ValidationError{Field: "members", Message: err.Error()}
	}
	if len(conv.Members) < 2 {
		return nil, &registrystore.ValidationError{Field: "members", Message: "a group needs at least one other member"}
	}
	created, err := s.store.CreateGroup(ctx, conv)
	if err != nil {
		return nil, err
	}
	return s.populateOne(ctx, created, "")
}

// requireGroup distinguishes a missing conversation from a direct one so
// group operations answer 404 and 400 respectively.
func (s *ConversationService) requireGroup(ctx context.Context, chatID string) (*model.Conversation, error) {
	if strings.TrimSpace(chatID) == "" {
		return nil, &registrystore.ValidationError{Field: "chatId", Message: "chatId is required"}
	}
	conv, err := s.store.GetConversation(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !conv.IsGroup() {
		return nil, registrystore.NotAGroup()
	}
	return conv, nil
}

// RenameGroup changes a group's display name.
func (s *ConversationService) RenameGroup(ctx context.Context, chatID, name string) (*model.ConversationView, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &registrystore.ValidationError{Field: "name", Message: "name is required"}
	}
	if _, err := s.requireGroup(ctx, chatID); err != nil {
		return nil, err
	}
	conv, err := s.store.RenameGroup(ctx, chatID, name)
	if err != nil {
		return nil, err
	}
	return s.populateOne(ctx, conv, "")
}

// AddMember adds userID to a group. Adding an existing member is a no-op.
func (s *ConversationService) AddMember(ctx context.Context, chatID, userID string) (*model.ConversationView, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, &registrystore.ValidationError{Field: "userId", Message: "userId is required"}
	}
	if _, err := s.requireGroup(ctx, chatID); err != nil {
		return nil, err
	}
	conv, err := s.store.AddMember(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	return s.populateOne(ctx, conv, "")
}

// RemoveMember removes userID from a group. The admin cannot be removed.
func (s *ConversationService) RemoveMember(ctx context.Context, chatID, userID string) (*model.ConversationView, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, &registrystore.ValidationError{Field: "userId", Message: "userId is required"}
	}
	group, err := s.requireGroup(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if group.Group.AdminID == userID {
		return nil, &registrystore.ValidationError{Field: "userId", Message: "the group admin cannot be removed"}
	}
	conv, err := s.store.RemoveMember(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	return s.populateOne(ctx, conv, "")
}

// MarkRead resets the caller's unread counter for chatID.
func (s *ConversationService) MarkRead(ctx context.Context, callerID, chatID string) (*model.ConversationView, error) {
	conv, err := s.memberConversation(ctx, chatID, callerID)
	if err != nil {
		return nil, err
	}
	if conv.Members[conv.MemberIndex(callerID)].UnreadCount != 0 {
		if conv, err = s.store.ResetUnread(ctx, chatID, callerID); err != nil {
			return nil, err
		}
	}
	return s.populateOne(ctx, conv, callerID)
}

// RecordMessage stores text as the latest message and bumps the unread
// counter of every member except the sender.
func (s *ConversationService) RecordMessage(ctx context.Context, chatID, senderID, text string) (*model.Conversation, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &registrystore.ValidationError{Field: "text", Message: msgEmptyMessage}
	}
	if _, err := s.memberConversation(ctx, chatID, senderID); err != nil {
		return nil, err
	}
	return s.store.RecordMessage(ctx, chatID, senderID, text)
}

func (s *ConversationService) memberConversation(ctx context.Context, chatID, userID string) (*model.Conversation, error) {
	if strings.TrimSpace(chatID) == "" {
		return nil, &registrystore.ValidationError{Field: "chatId", Message: "chatId is required"}
	}
	conv, err := s.store.GetConversation(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !conv.HasMember(userID) {
		return nil, &registrystore.ForbiddenError{Message: "not a member of this conversation"}
	}
	return conv, nil
}

// IsNotFound reports whether err is a store NotFoundError.
func IsNotFound(err error) bool {
	var nf *registrystore.NotFoundError
	return errors.As(err, &nf)
}
