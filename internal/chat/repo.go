package chat

import (
	"context"

	"gorm.io/gorm"
)

// Repo is the message persistence layer.
type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// Insert stores one completed exchange.
func (r *Repo) Insert(ctx context.Context, m *Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// Latest returns the newest limit exchanges for a conversation, newest
// first.
func (r *Repo) Latest(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	var out []Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("message_id DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ByUser returns a user's exchanges across all conversations, newest
// first, paginated.
func (r *Repo) ByUser(ctx context.Context, userID string, page, pageSize int) ([]Message, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	q := r.db.WithContext(ctx).Model(&Message{}).Where("user_id = ?", userID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []Message
	err := q.Order("message_id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&out).Error
	return out, total, err
}
