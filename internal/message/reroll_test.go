package message

import (
	"context"
	"errors"
	"testing"

	"github.com/storytellr/relay/internal/common"
)

func seedMessage(t *testing.T, repo *Repo, m *Message) *Message {
	t.Helper()
	if err := repo.db.Create(m).Error; err != nil {
		t.Fatalf("seed message: %v", err)
	}
	return m
}

func TestReroll_PlaceholderShape(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	rerolls := NewRerolls(repo)
	ctx := context.Background()

	parent := seedMessage(t, repo, &Message{
		ConversationID: 7,
		UserID:         "u1",
		Content:        "original answer",
		IsUserAuthor:   false,
		IsActive:       true,
		IsComplete:     true,
		StreamID:       "01JTESTPARENTAAAAAAAAAAAAA",
	})

	alt, streamID, err := rerolls.CreateAlternative(ctx, "u1", parent.ID, 7)
	if err != nil {
		t.Fatalf("reroll: %v", err)
	}
	if streamID == "" || len(streamID) != 26 {
		t.Fatalf("expected a fresh ulid stream id, got %q", streamID)
	}
	if streamID == parent.StreamID {
		t.Fatalf("placeholder must not reuse the parent stream id")
	}
	if alt.ParentMessageID != parent.ID || alt.ConversationID != 7 || alt.UserID != "u1" {
		t.Fatalf("placeholder lineage wrong: %+v", alt)
	}
	if alt.Content != "" || !alt.IsStreaming || alt.IsComplete || alt.IsUserAuthor || !alt.IsActive {
		t.Fatalf("placeholder flags wrong: %+v", alt)
	}

	stored, err := repo.GetAlternativeByStreamID(ctx, streamID)
	if err != nil {
		t.Fatalf("placeholder not persisted: %v", err)
	}
	if stored.ID != alt.ID {
		t.Fatalf("returned row differs from stored row")
	}
}

func TestReroll_ParentAbsent(t *testing.T) {
	db := openTestDB(t)
	rerolls := NewRerolls(NewRepo(db))

	_, _, err := rerolls.CreateAlternative(context.Background(), "u1", 999, 7)
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReroll_ParentInOtherConversation(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	rerolls := NewRerolls(repo)

	parent := seedMessage(t, repo, &Message{
		ConversationID: 7,
		UserID:         "u1",
		IsActive:       true,
		StreamID:       "01JTESTWRONGCONVAAAAAAAAAA",
	})

	_, _, err := rerolls.CreateAlternative(context.Background(), "u1", parent.ID, 8)
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReroll_ParentOwnedByOther(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	rerolls := NewRerolls(repo)

	parent := seedMessage(t, repo, &Message{
		ConversationID: 7,
		UserID:         "u2",
		IsActive:       true,
		StreamID:       "01JTESTWRONGOWNERAAAAAAAAA",
	})

	_, _, err := rerolls.CreateAlternative(context.Background(), "u1", parent.ID, 7)
	if !errors.Is(err, common.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestReroll_UserAuthoredParentRejected(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	rerolls := NewRerolls(repo)

	parent := seedMessage(t, repo, &Message{
		ConversationID: 7,
		UserID:         "u1",
		IsUserAuthor:   true,
		IsActive:       true,
		StreamID:       "01JTESTUSERMSGAAAAAAAAAAAA",
	})

	_, _, err := rerolls.CreateAlternative(context.Background(), "u1", parent.ID, 7)
	if !errors.Is(err, common.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}

	var count int64
	if err := db.Model(&Alternative{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("rejected reroll must not leave a row, found %d", count)
	}
}
