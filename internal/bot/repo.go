package bot

import (
	"context"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) GetBotByID(ctx context.Context, id uint64) (*Bot, error) {
	var b Bot
	if err := r.db.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *Repo) DefaultBot(ctx context.Context, userID string) (*Bot, error) {
	var b Bot
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_default = ?", userID, true).
		Order("updated_at DESC, id DESC").
		First(&b).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// LatestBot is the last-resort resolution branch: the most recently updated
// bot owned by the user, ties broken by highest id.
func (r *Repo) LatestBot(ctx context.Context, userID string) (*Bot, error) {
	var b Bot
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC, id DESC").
		First(&b).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *Repo) GetConversation(ctx context.Context, id uint64) (*Conversation, error) {
	var conv Conversation
	if err := r.db.WithContext(ctx).First(&conv, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

// CreateBot inserts a bot, demoting any existing default first so that at
// most one default exists per user.
func (r *Repo) CreateBot(ctx context.Context, b *Bot) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if b.IsDefault {
			if err := tx.Model(&Bot{}).
				Where("user_id = ? AND is_default = ?", b.UserID, true).
				Update("is_default", false).Error; err != nil {
				return err
			}
		}
		return tx.Create(b).Error
	})
}
