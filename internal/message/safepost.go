package message

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/storytellr/relay/internal/common"
	"gorm.io/gorm"
)

type TargetKind string

const (
	TargetMessage     TargetKind = "message"
	TargetAlternative TargetKind = "alternative"
)

// PersistRequest is the terminal write handed over by the orchestrator once
// per stream. TargetID is non-zero only for reroll placeholders created
// before streaming began.
type PersistRequest struct {
	Kind            TargetKind `json:"kind"`
	TargetID        uint64     `json:"target_id,omitempty"`
	ConversationID  uint64     `json:"conversation_id"`
	ParentMessageID uint64     `json:"parent_message_id,omitempty"`
	UserID          string     `json:"user_id"`
	Content         string     `json:"content"`
	IsComplete      bool       `json:"is_complete"`
	StreamID        string     `json:"stream_id"`
}

// Store is the write surface the poster retries against. Split out so retry
// behavior is testable with a failing fake.
type Store interface {
	UpsertMessageByStreamID(ctx context.Context, m *Message) (uint64, error)
	UpsertAlternativeByStreamID(ctx context.Context, a *Alternative) (uint64, error)
	UpdateAlternativeByID(ctx context.Context, id uint64, content string, isComplete bool) error
}

// FailedWritePublisher receives payloads whose retries were exhausted, for
// offline reconciliation. A nil publisher drops them (logged only).
type FailedWritePublisher interface {
	PublishFailedWrite(ctx context.Context, payload any) error
}

// SafePoster writes generation results with bounded retry and idempotent
// stream_id semantics. A persistence failure never propagates back into the
// SSE stream; by the time Persist runs the tokens are already delivered.
type SafePoster struct {
	store    Store
	fallback FailedWritePublisher
	attempts int
	backoff  time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewSafePoster(store Store, fallback FailedWritePublisher, attempts int, backoff time.Duration) *SafePoster {
	if attempts <= 0 {
		attempts = 3
	}
	if backoff <= 0 {
		backoff = time.Second
	}
	return &SafePoster{
		store:    store,
		fallback: fallback,
		attempts: attempts,
		backoff:  backoff,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// permanent reports whether retrying cannot help: validation and ownership
// failures, or a vanished reroll placeholder.
func permanent(err error) bool {
	return errors.Is(err, common.ErrInvalidRequest) ||
		errors.Is(err, common.ErrForbidden) ||
		errors.Is(err, common.ErrNotFound) ||
		errors.Is(err, gorm.ErrRecordNotFound)
}

func (p *SafePoster) apply(ctx context.Context, req PersistRequest) (uint64, error) {
	switch req.Kind {
	case TargetMessage:
		return p.store.UpsertMessageByStreamID(ctx, &Message{
			ConversationID: req.ConversationID,
			UserID:         req.UserID,
			Content:        req.Content,
			IsUserAuthor:   false,
			IsActive:       true,
			IsStreaming:    false,
			IsComplete:     req.IsComplete,
			StreamID:       req.StreamID,
		})
	case TargetAlternative:
		if req.TargetID != 0 {
			if err := p.store.UpdateAlternativeByID(ctx, req.TargetID, req.Content, req.IsComplete); err != nil {
				return 0, err
			}
			return req.TargetID, nil
		}
		return p.store.UpsertAlternativeByStreamID(ctx, &Alternative{
			ParentMessageID: req.ParentMessageID,
			ConversationID:  req.ConversationID,
			UserID:          req.UserID,
			Content:         req.Content,
			IsUserAuthor:    false,
			IsActive:        true,
			IsStreaming:     false,
			IsComplete:      req.IsComplete,
			StreamID:        req.StreamID,
		})
	default:
		return 0, fmt.Errorf("unknown persist target %q: %w", req.Kind, common.ErrInvalidRequest)
	}
}

// Persist attempts the write up to the configured bound with increasing
// backoff. Exhaustion hands the payload to the fallback queue and returns
// ErrPersistenceFailed.
func (p *SafePoster) Persist(ctx context.Context, req PersistRequest) (uint64, error) {
	var lastErr error
	for i := 0; i < p.attempts; i++ {
		if i > 0 {
			if err := p.sleep(ctx, time.Duration(i)*p.backoff); err != nil {
				lastErr = err
				break
			}
		}
		id, err := p.apply(ctx, req)
		if err == nil {
			return id, nil
		}
		if permanent(err) {
			return 0, err
		}
		lastErr = err
		log.Printf("safepost retry stream_id=%s attempt=%d err=%v", req.StreamID, i+1, err)
	}

	if p.fallback != nil {
		if err := p.fallback.PublishFailedWrite(ctx, req); err != nil {
			log.Printf("safepost fallback publish failed stream_id=%s err=%v", req.StreamID, err)
		}
	}
	log.Printf("safepost exhausted stream_id=%s err=%v", req.StreamID, lastErr)
	return 0, fmt.Errorf("%w: %v", common.ErrPersistenceFailed, lastErr)
}
