package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Kind discriminates the two conversation variants.
type Kind string

const (
	KindDirect Kind = "direct"
	KindGroup  Kind = "group"
)

// DefaultGroupPic is assigned to groups created without a picture.
const DefaultGroupPic = "https://icon-library.com/images/anonymous-avatar-icon/anonymous-avatar-icon-25.jpg"

// Member is one participant of a conversation together with their unread counter.
// Keeping the counter on the member entry means a participant can never exist
// without a counter, or the other way around.
type Member struct {
	UserID      string    `json:"userId"`
	UnreadCount int       `json:"count"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// GroupInfo holds the fields that only exist on group conversations.
type GroupInfo struct {
	Name    string `json:"name"`
	AdminID string `json:"adminId"`
	Pic     string `json:"pic"`
}

// Conversation is either a direct (exactly two members, Group == nil) or a
// group conversation (Group != nil).
type Conversation struct {
	ID            string     `json:"id"`
	Kind          Kind       `json:"kind"`
	Members       []Member   `json:"members"`
	Group         *GroupInfo `json:"group,omitempty"`
	LatestMessage string     `json:"latestMessage"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// NewDirect builds an unsaved direct conversation between a and b.
func NewDirect(a, b string, now time.Time) (*Conversation, error) {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return nil, errors.New("direct conversation requires two user ids")
	}
	if a == b {
		return nil, errors.New("direct conversation requires two distinct users")
	}
	return &Conversation{
		Kind: KindDirect,
		Members: []Member{
			{UserID: a, JoinedAt: now},
			{UserID: b, JoinedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// NewGroup builds an unsaved group conversation. Member ids are de-duplicated
// in order and the admin is appended when absent.
func NewGroup(name, adminID string, memberIDs []string, now time.Time) (*Conversation, error) {
	name = strings.TrimSpace(name)
	adminID = strings.TrimSpace(adminID)
	if name == "" {
		return nil, errors.New("group name is required")
	}
	if adminID == "" {
		return nil, errors.New("group admin is required")
	}
	ids := UniqueIDs(append(append([]string{}, memberIDs...), adminID))
	members := make([]Member, len(ids))
	for i, id := range ids {
		members[i] = Member{UserID: id, JoinedAt: now}
	}
	return &Conversation{
		Kind:    KindGroup,
		Members: members,
		Group: &GroupInfo{
			Name:    name,
			AdminID: adminID,
			Pic:     DefaultGroupPic,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// IsGroup reports whether the conversation is a group conversation.
func (c *Conversation) IsGroup() bool {
	return c != nil && c.Kind == KindGroup
}

// HasMember reports whether userID participates in the conversation.
func (c *Conversation) HasMember(userID string) bool {
	return c.MemberIndex(userID) >= 0
}

// MemberIndex returns the position of userID in Members, or -1.
func (c *Conversation) MemberIndex(userID string) int {
	for i, m := range c.Members {
		if m.UserID == userID {
			return i
		}
	}
	return -1
}

// MemberIDs returns the participant ids in display order.
func (c *Conversation) MemberIDs() []string {
	ids := make([]string, len(c.Members))
	for i, m := range c.Members {
		ids[i] = m.UserID
	}
	return ids
}

// Validate checks the structural invariants of the variant.
func (c *Conversation) Validate() error {
	seen := make(map[string]struct{}, len(c.Members))
	for _, m := range c.Members {
		if m.UserID == "" {
			return errors.New("member with empty user id")
		}
		if _, dup := seen[m.UserID]; dup {
			return fmt.Errorf("duplicate member %s", m.UserID)
		}
		if m.UnreadCount < 0 {
			return fmt.Errorf("negative unread count for %s", m.UserID)
		}
		seen[m.UserID] = struct{}{}
	}
	switch c.Kind {
	case KindDirect:
		if c.Group != nil {
			return errors.New("direct conversation cannot carry group info")
		}
		if len(c.Members) != 2 {
			return fmt.Errorf("direct conversation must have 2 members, has %d", len(c.Members))
		}
	case KindGroup:
		if c.Group == nil || c.Group.Name == "" || c.Group.AdminID == "" {
			return errors.New("group conversation requires a name and an admin")
		}
	default:
		return fmt.Errorf("unknown conversation kind %q", c.Kind)
	}
	return nil
}

// DirectKey is the order-independent identity of a direct conversation.
func DirectKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}

// DirectKey returns the key of a direct conversation, or "" for groups.
func (c *Conversation) DirectKey() string {
	if c.Kind != KindDirect || len(c.Members) != 2 {
		return ""
	}
	return DirectKey(c.Members[0].UserID, c.Members[1].UserID)
}

// UniqueIDs trims ids, drops blanks and removes duplicates keeping first occurrence.
func UniqueIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// SortByActivity orders conversations by UpdatedAt descending, ties by id.
func SortByActivity(convs []Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		if !convs[i].UpdatedAt.Equal(convs[j].UpdatedAt) {
			return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
		}
		return convs[i].ID < convs[j].ID
	})
}
