package gormstore

import (
	"time"

	"github.com/chirino/conversation-service/internal/model"
)

type conversationRow struct {
	ID            string `gorm:"primaryKey"`
	IsGroup       bool
	DirectKey     *string
	Name          string
	GroupAdmin    string
	GroupPic      string
	LatestMessage string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Members       []memberRow `gorm:"foreignKey:ConversationID;references:ID"`
}

func (conversationRow) TableName() string { return "conversations" }

type memberRow struct {
	ConversationID string `gorm:"primaryKey"`
	UserID         string `gorm:"primaryKey"`
	Position       int
	UnreadCount    int
	JoinedAt       time.Time
}

func (memberRow) TableName() string { return "conversation_members" }

func toRow(c *model.Conversation) conversationRow {
	row := conversationRow{
		ID:            c.ID,
		IsGroup:       c.IsGroup(),
		LatestMessage: c.LatestMessage,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
		Members:       make([]memberRow, len(c.Members)),
	}
	if key := c.DirectKey(); key != "" {
		row.DirectKey = &key
	}
	if c.Group != nil {
		row.Name = c.Group.Name
		row.GroupAdmin = c.Group.AdminID
		row.GroupPic = c.Group.Pic
	}
	for i, m := range c.Members {
		row.Members[i] = memberRow{
			ConversationID: c.ID,
			UserID:         m.UserID,
			Position:       i,
			UnreadCount:    m.UnreadCount,
			JoinedAt:       m.JoinedAt,
		}
	}
	return row
}

func (r conversationRow) toModel() *model.Conversation {
	c := &model.Conversation{
		ID:            r.ID,
		Kind:          model.KindDirect,
		LatestMessage: r.LatestMessage,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		Members:       make([]model.Member, len(r.Members)),
	}
	if r.IsGroup {
		c.Kind = model.KindGroup
		c.Group = &model.GroupInfo{Name: r.Name, AdminID: r.GroupAdmin, Pic: r.GroupPic}
	}
	for i, m := range r.Members {
		c.Members[i] = model.Member{UserID: m.UserID, UnreadCount: m.UnreadCount, JoinedAt: m.JoinedAt}
	}
	return c
}
