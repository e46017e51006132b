package message

import (
	"context"
	"errors"
	"fmt"

	"github.com/storytellr/relay/internal/common"
	"gorm.io/gorm"
)

// Rerolls creates alternative placeholders ahead of streaming so a reroll
// can be tracked and later reconciled through the safe-post path.
type Rerolls struct {
	repo *Repo
}

func NewRerolls(repo *Repo) *Rerolls {
	return &Rerolls{repo: repo}
}

// CreateAlternative validates the reroll preconditions and inserts the
// streaming placeholder. Only assistant-authored messages can be rerolled.
func (r *Rerolls) CreateAlternative(ctx context.Context, userID string, parentMessageID, conversationID uint64) (*Alternative, string, error) {
	parent, err := r.repo.GetMessageByID(ctx, parentMessageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", fmt.Errorf("parent message %d: %w", parentMessageID, common.ErrNotFound)
		}
		return nil, "", err
	}
	if parent.ConversationID != conversationID {
		return nil, "", fmt.Errorf("parent message %d not in conversation %d: %w",
			parentMessageID, conversationID, common.ErrNotFound)
	}
	if parent.UserID != userID {
		return nil, "", fmt.Errorf("parent message %d: %w", parentMessageID, common.ErrForbidden)
	}
	if parent.IsUserAuthor {
		return nil, "", fmt.Errorf("cannot reroll a user-authored message: %w", common.ErrInvalidRequest)
	}

	streamID, err := common.NewStreamID()
	if err != nil {
		return nil, "", err
	}

	alt := &Alternative{
		ParentMessageID: parentMessageID,
		ConversationID:  conversationID,
		UserID:          userID,
		Content:         "",
		IsUserAuthor:    false,
		IsActive:        true,
		IsStreaming:     true,
		IsComplete:      false,
		StreamID:        streamID,
	}
	if err := r.repo.CreateAlternative(ctx, alt); err != nil {
		return nil, "", fmt.Errorf("create alternative: %w", err)
	}
	return alt, streamID, nil
}
