package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/storytellr/relay/internal/bot"
)

// Cache is a short-TTL read-through cache for bot lookups. Bots are
// read-only from the relay's perspective, so staleness is bounded by TTL
// alone and no invalidation protocol is needed.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(addr, password string, db int, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache{
		rdb: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		ttl: ttl,
	}
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func botKey(id uint64) string {
	return fmt.Sprintf("relay:bot:%d", id)
}

// cachedBot carries every field explicitly: the model hides user_id and
// access_key from API responses, but they must round-trip through the cache.
type cachedBot struct {
	ID           uint64    `json:"id"`
	UserID       string    `json:"user_id"`
	Name         string    `json:"name"`
	Model        string    `json:"model"`
	AccessKey    string    `json:"access_key"`
	AccessPath   string    `json:"access_path"`
	ContextSize  int       `json:"context_size"`
	MaxTokens    int       `json:"max_tokens"`
	Temperature  float64   `json:"temperature"`
	SystemPrompt string    `json:"system_prompt"`
	IsDefault    bool      `json:"is_default"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (c *Cache) GetBot(ctx context.Context, id uint64) (*bot.Bot, bool) {
	raw, err := c.rdb.Get(ctx, botKey(id)).Bytes()
	if err != nil {
		return nil, false
	}
	var cb cachedBot
	if err := json.Unmarshal(raw, &cb); err != nil {
		return nil, false
	}
	return &bot.Bot{
		ID:           cb.ID,
		UserID:       cb.UserID,
		Name:         cb.Name,
		Model:        cb.Model,
		AccessKey:    cb.AccessKey,
		AccessPath:   cb.AccessPath,
		ContextSize:  cb.ContextSize,
		MaxTokens:    cb.MaxTokens,
		Temperature:  cb.Temperature,
		SystemPrompt: cb.SystemPrompt,
		IsDefault:    cb.IsDefault,
		CreatedAt:    cb.CreatedAt,
		UpdatedAt:    cb.UpdatedAt,
	}, true
}

func (c *Cache) SetBot(ctx context.Context, b *bot.Bot) {
	raw, err := json.Marshal(cachedBot{
		ID:           b.ID,
		UserID:       b.UserID,
		Name:         b.Name,
		Model:        b.Model,
		AccessKey:    b.AccessKey,
		AccessPath:   b.AccessPath,
		ContextSize:  b.ContextSize,
		MaxTokens:    b.MaxTokens,
		Temperature:  b.Temperature,
		SystemPrompt: b.SystemPrompt,
		IsDefault:    b.IsDefault,
		CreatedAt:    b.CreatedAt,
		UpdatedAt:    b.UpdatedAt,
	})
	if err != nil {
		return
	}
	_ = c.rdb.Set(ctx, botKey(b.ID), raw, c.ttl).Err()
}
