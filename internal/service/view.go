package service

import (
	"context"

	"github.com/chirino/conversation-service/internal/model"
)

// populate expands member and admin ids into redacted profiles. hideUserID,
// when set, is omitted from the members list but keeps its unread counter.
func (s *ConversationService) populate(ctx context.Context, convs []model.Conversation, hideUserID string) ([]model.ConversationView, error) {
	var ids []string
	for _, c := range convs {
		ids = append(ids, c.MemberIDs()...)
		if c.Group != nil {
			ids = append(ids, c.Group.AdminID)
		}
	}
	users, err := s.users.Resolve(ctx, ids)
	if err != nil {
		return nil, err
	}
	views := make([]model.ConversationView, len(convs))
	for i := range convs {
		views[i] = toView(&convs[i], users, hideUserID)
	}
	return views, nil
}

func (s *ConversationService) populateOne(ctx context.Context, c *model.Conversation, hideUserID string) (*model.ConversationView, error) {
	views, err := s.populate(ctx, []model.Conversation{*c}, hideUserID)
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func toView(c *model.Conversation, users map[string]model.User, hideUserID string) model.ConversationView {
	ref := func(id string) model.UserRef {
		if u, ok := users[id]; ok {
			return u.Ref()
		}
		return model.UserRef{ID: id}
	}
	v := model.ConversationView{
		ID:            c.ID,
		IsGroup:       c.IsGroup(),
		Members:       make([]model.UserRef, 0, len(c.Members)),
		UnreadCounts:  make([]model.UnreadCount, 0, len(c.Members)),
		LatestMessage: c.LatestMessage,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
	for _, m := range c.Members {
		v.UnreadCounts = append(v.UnreadCounts, model.UnreadCount{UserID: m.UserID, Count: m.UnreadCount})
		if m.UserID == hideUserID {
			continue
		}
		v.Members = append(v.Members, ref(m.UserID))
	}
	if c.Group != nil {
		v.Name = c.Group.Name
		v.GroupPic = c.Group.Pic
		admin := ref(c.Group.AdminID)
		v.GroupAdmin = &admin
	}
	return v
}
