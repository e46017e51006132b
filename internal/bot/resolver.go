package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/storytellr/relay/internal/common"
	"gorm.io/gorm"
)

// Cache is an optional read-through cache for by-id bot lookups. Bots are
// read-only from the relay's perspective, so short-TTL caching is safe.
type Cache interface {
	GetBot(ctx context.Context, id uint64) (*Bot, bool)
	SetBot(ctx context.Context, b *Bot)
}

// Resolver determines which bot governs a generation request.
type Resolver struct {
	repo  *Repo
	cache Cache // nil disables caching
}

func NewResolver(repo *Repo, cache Cache) *Resolver {
	return &Resolver{repo: repo, cache: cache}
}

func (r *Resolver) botByID(ctx context.Context, id uint64) (*Bot, error) {
	if r.cache != nil {
		if b, ok := r.cache.GetBot(ctx, id); ok {
			return b, nil
		}
	}
	b, err := r.repo.GetBotByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		r.cache.SetBot(ctx, b)
	}
	return b, nil
}

// Resolve picks the governing bot. Priority, first match wins:
//
//  1. explicit bot id (ownership enforced)
//  2. the conversation's bound bot
//  3. the user's default bot
//  4. the user's most recently updated bot
//
// explicitBotID == 0 and conversationID == 0 mean "not provided".
func (r *Resolver) Resolve(ctx context.Context, userID string, explicitBotID, conversationID uint64) (*Bot, error) {
	if explicitBotID != 0 {
		b, err := r.botByID(ctx, explicitBotID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("bot %d: %w", explicitBotID, common.ErrNotFound)
			}
			return nil, err
		}
		if b.UserID != userID {
			return nil, fmt.Errorf("bot %d: %w", explicitBotID, common.ErrForbidden)
		}
		return b, nil
	}

	if conversationID != 0 {
		conv, err := r.repo.GetConversation(ctx, conversationID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if err == nil && conv.UserID == userID && conv.BotID != nil {
			b, err := r.botByID(ctx, *conv.BotID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return nil, fmt.Errorf("conversation bot %d: %w", *conv.BotID, common.ErrNotFound)
				}
				return nil, err
			}
			if b.UserID != userID {
				return nil, fmt.Errorf("conversation bot %d: %w", *conv.BotID, common.ErrForbidden)
			}
			return b, nil
		}
	}

	b, err := r.repo.DefaultBot(ctx, userID)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	b, err = r.repo.LatestBot(ctx, userID)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	return nil, fmt.Errorf("no usable bot: %w", common.ErrNotFound)
}
