package model

import "time"

// UnreadCount is the wire form of one member's counter.
type UnreadCount struct {
	UserID string `json:"userId"`
	Count  int    `json:"count"`
}

// ConversationView is the populated response shape of a conversation.
type ConversationView struct {
	ID            string        `json:"id"`
	IsGroup       bool          `json:"isGroup"`
	Name          string        `json:"name"`
	GroupPic      string        `json:"groupPic,omitempty"`
	Members       []UserRef     `json:"members"`
	GroupAdmin    *UserRef      `json:"groupAdmin"`
	LatestMessage string        `json:"latestMessage"`
	UnreadCounts  []UnreadCount `json:"unreadCounts"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// UnreadFor returns the counter of userID, or 0 if they are not a member.
func (v ConversationView) UnreadFor(userID string) int {
	for _, u := range v.UnreadCounts {
		if u.UserID == userID {
			return u.Count
		}
	}
	return 0
}
