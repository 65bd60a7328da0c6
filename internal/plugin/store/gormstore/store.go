// Package gormstore implements the conversation store on top of GORM. The
// postgres and sqlite plugins open the connection and run their schema; the
// queries here are portable between both dialects.
package gormstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/chirino/conversation-service/internal/model"
	registrystore "github.com/chirino/conversation-service/internal/registry/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store implements registrystore.ConversationStore using GORM.
type Store struct {
	db *gorm.DB
}

// New wraps an open GORM connection. The schema must already exist.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying connection, mainly for tests.
func (s *Store) DB() *gorm.DB {
	return s.db
}

func now() time.Time {
	return time.Now().UTC()
}

func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func notFound(id string) error {
	return &registrystore.NotFoundError{Resource: "conversation", ID: id}
}

func preloadMembers(db *gorm.DB) *gorm.DB {
	return db.Preload("Members", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC, joined_at ASC, user_id ASC")
	})
}

func (s *Store) PutUser(ctx context.Context, user model.User) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&user).Error
}

func (s *Store) GetUsers(ctx context.Context, ids []string) (map[string]model.User, error) {
	result := make(map[string]model.User, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var users []model.User
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		result[u.ID] = u
	}
	return result, nil
}

func (s *Store) load(ctx context.Context, db *gorm.DB, query string, args ...any) (*model.Conversation, error) {
	var row conversationRow
	err := preloadMembers(db.WithContext(ctx)).Where(query, args...).First(&row).Error
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	c, err := s.load(ctx, s.db, "id = ?", id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(id)
	}
	return c, err
}

func (s *Store) FindOrCreateDirect(ctx context.Context, a, b string) (*model.Conversation, bool, error) {
	key := model.DirectKey(a, b)
	existing, err := s.load(ctx, s.db, "direct_key = ?", key)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	conv, err := model.NewDirect(a, b, now())
	if err != nil {
		return nil, false, &registrystore.ValidationError{Field: "members", Message: err.Error()}
	}
	conv.ID = uuid.NewString()
	row := toRow(conv)
	err = s.db.WithContext(ctx).Create(&row).Error
	if isDuplicateKey(err) {
		// Another request created the pair first.
		existing, err = s.load(ctx, s.db, "direct_key = ?", key)
		return existing, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return conv, true, nil
}

func (s *Store) CreateGroup(ctx context.Context, conv *model.Conversation) (*model.Conversation, error) {
	if !conv.IsGroup() {
		return nil, &registrystore.ValidationError{Field: "isGroup", Message: "not a group conversation"}
	}
	if err := conv.Validate(); err != nil {
		return nil, &registrystore.ValidationError{Field: "members", Message: err.Error()}
	}
	created := *conv
	created.ID = uuid.NewString()
	row := toRow(&created)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, err
	}
	return s.GetConversation(ctx, created.ID)
}

func (s *Store) ListConversations(ctx context.Context, userID string) ([]model.Conversation, error) {
	db := s.db.WithContext(ctx)
	memberOf := db.Model(&memberRow{}).Select("conversation_id").Where("user_id = ?", userID)
	var rows []conversationRow
	err := preloadMembers(db).
		Where("id IN (?)", memberOf).
		Order("updated_at DESC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	result := make([]model.Conversation, len(rows))
	for i, r := range rows {
		result[i] = *r.toModel()
	}
	return result, nil
}

func (s *Store) RenameGroup(ctx context.Context, id, name string) (*model.Conversation, error) {
	res := s.db.WithContext(ctx).Model(&conversationRow{}).
		Where("id = ? AND is_group = ?", id, true).
		Updates(map[string]any{"name": name, "updated_at": now()})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, notFound(id)
	}
	return s.GetConversation(ctx, id)
}

func requireGroup(tx *gorm.DB, id string) error {
	var n int64
	if err := tx.Model(&conversationRow{}).Where("id = ? AND is_group = ?", id, true).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return notFound(id)
	}
	return nil
}

func touch(tx *gorm.DB, id string) error {
	return tx.Model(&conversationRow{}).Where("id = ?", id).Update("updated_at", now()).Error
}

func (s *Store) AddMember(ctx context.Context, id, userID string) (*model.Conversation, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireGroup(tx, id); err != nil {
			return err
		}
		var next int
		if err := tx.Model(&memberRow{}).
			Where("conversation_id = ?", id).
			Select("COALESCE(MAX(position), -1) + 1").
			Scan(&next).Error; err != nil {
			return err
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&memberRow{
			ConversationID: id,
			UserID:         userID,
			Position:       next,
			JoinedAt:       now(),
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		return touch(tx, id)
	})
	if err != nil {
		return nil, err
	}
	return s.GetConversation(ctx, id)
}

func (s *Store) RemoveMember(ctx context.Context, id, userID string) (*model.Conversation, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireGroup(tx, id); err != nil {
			return err
		}
		res := tx.Where("conversation_id = ? AND user_id = ?", id, userID).Delete(&memberRow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		return touch(tx, id)
	})
	if err != nil {
		return nil, err
	}
	return s.GetConversation(ctx, id)
}

func (s *Store) RecordMessage(ctx context.Context, id, senderID, text string) (*model.Conversation, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&conversationRow{}).Where("id = ?", id).
			Updates(map[string]any{"latest_message": text, "updated_at": now()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return notFound(id)
		}
		return tx.Model(&memberRow{}).
			Where("conversation_id = ? AND user_id <> ?", id, senderID).
			Update("unread_count", gorm.Expr("unread_count + 1")).Error
	})
	if err != nil {
		return nil, err
	}
	return s.GetConversation(ctx, id)
}

func (s *Store) ResetUnread(ctx context.Context, id, userID string) (*model.Conversation, error) {
	err := s.db.WithContext(ctx).Model(&memberRow{}).
		Where("conversation_id = ? AND user_id = ?", id, userID).
		Update("unread_count", 0).Error
	if err != nil {
		return nil, err
	}
	return s.GetConversation(ctx, id)
}

var _ registrystore.ConversationStore = (*Store)(nil)
