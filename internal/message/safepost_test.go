package message

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/storytellr/relay/internal/common"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Message{}, &Alternative{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func noSleep(p *SafePoster) *SafePoster {
	p.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return p
}

func TestPersist_MessageIdempotentByStreamID(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	poster := NewSafePoster(repo, nil, 3, time.Millisecond)
	ctx := context.Background()

	req := PersistRequest{
		Kind:           TargetMessage,
		ConversationID: 7,
		UserID:         "u1",
		Content:        "partial",
		IsComplete:     false,
		StreamID:       "01JTESTSTREAMIDAAAAAAAAAAA",
	}
	firstID, err := poster.Persist(ctx, req)
	if err != nil {
		t.Fatalf("first persist: %v", err)
	}

	// a redelivered write for the same stream must update, not duplicate
	req.Content = "full answer"
	req.IsComplete = true
	secondID, err := poster.Persist(ctx, req)
	if err != nil {
		t.Fatalf("second persist: %v", err)
	}
	if firstID != secondID {
		t.Fatalf("expected same row id, got %d then %d", firstID, secondID)
	}

	var count int64
	if err := db.Model(&Message{}).Where("stream_id = ?", req.StreamID).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one row, got %d", count)
	}

	stored, err := repo.GetMessageByStreamID(ctx, req.StreamID)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if stored.Content != "full answer" || !stored.IsComplete {
		t.Fatalf("row must hold the latest write: content=%q complete=%v", stored.Content, stored.IsComplete)
	}
}

func TestPersist_AlternativePlaceholderReconciled(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	poster := NewSafePoster(repo, nil, 3, time.Millisecond)
	ctx := context.Background()

	placeholder := &Alternative{
		ParentMessageID: 3,
		ConversationID:  7,
		UserID:          "u1",
		IsActive:        true,
		IsStreaming:     true,
		StreamID:        "01JTESTALTSTREAMAAAAAAAAAA",
	}
	if err := repo.CreateAlternative(ctx, placeholder); err != nil {
		t.Fatalf("create placeholder: %v", err)
	}

	id, err := poster.Persist(ctx, PersistRequest{
		Kind:       TargetAlternative,
		TargetID:   placeholder.ID,
		UserID:     "u1",
		Content:    "rerolled reply",
		IsComplete: true,
		StreamID:   placeholder.StreamID,
	})
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if id != placeholder.ID {
		t.Fatalf("expected placeholder id %d, got %d", placeholder.ID, id)
	}

	stored, err := repo.GetAlternativeByID(ctx, placeholder.ID)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if stored.Content != "rerolled reply" || stored.IsStreaming || !stored.IsComplete {
		t.Fatalf("placeholder not reconciled: %+v", stored)
	}
}

func TestPersist_VanishedPlaceholderIsPermanent(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	store := &countingStore{inner: repo}
	poster := noSleep(NewSafePoster(store, nil, 3, time.Millisecond))

	_, err := poster.Persist(context.Background(), PersistRequest{
		Kind:     TargetAlternative,
		TargetID: 9999,
		UserID:   "u1",
		Content:  "x",
		StreamID: "01JTESTGONEAAAAAAAAAAAAAAA",
	})
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected record-not-found, got %v", err)
	}
	if store.calls != 1 {
		t.Fatalf("permanent failure must not retry, got %d attempts", store.calls)
	}
}

// countingStore counts calls and optionally fails the first N of them.
type countingStore struct {
	inner    Store
	calls    int
	failures int
	err      error
}

func (s *countingStore) UpsertMessageByStreamID(ctx context.Context, m *Message) (uint64, error) {
	s.calls++
	if s.calls <= s.failures {
		return 0, s.err
	}
	return s.inner.UpsertMessageByStreamID(ctx, m)
}

func (s *countingStore) UpsertAlternativeByStreamID(ctx context.Context, a *Alternative) (uint64, error) {
	s.calls++
	if s.calls <= s.failures {
		return 0, s.err
	}
	return s.inner.UpsertAlternativeByStreamID(ctx, a)
}

func (s *countingStore) UpdateAlternativeByID(ctx context.Context, id uint64, content string, isComplete bool) error {
	s.calls++
	if s.calls <= s.failures {
		return s.err
	}
	return s.inner.UpdateAlternativeByID(ctx, id, content, isComplete)
}

type capturingPublisher struct {
	payloads []any
}

func (p *capturingPublisher) PublishFailedWrite(ctx context.Context, payload any) error {
	p.payloads = append(p.payloads, payload)
	return nil
}

func TestPersist_TransientFailureRetriesThenSucceeds(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	store := &countingStore{inner: repo, failures: 2, err: fmt.Errorf("connection reset")}
	poster := noSleep(NewSafePoster(store, nil, 3, time.Millisecond))

	id, err := poster.Persist(context.Background(), PersistRequest{
		Kind:           TargetMessage,
		ConversationID: 7,
		UserID:         "u1",
		Content:        "eventually",
		IsComplete:     true,
		StreamID:       "01JTESTRETRYAAAAAAAAAAAAAA",
	})
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if id == 0 {
		t.Fatalf("expected stored row id")
	}
	if store.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", store.calls)
	}
}

func TestPersist_ExhaustionPublishesFallback(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	store := &countingStore{inner: repo, failures: 10, err: fmt.Errorf("db down")}
	pub := &capturingPublisher{}
	poster := noSleep(NewSafePoster(store, pub, 3, time.Millisecond))

	req := PersistRequest{
		Kind:           TargetMessage,
		ConversationID: 7,
		UserID:         "u1",
		Content:        "lost write",
		StreamID:       "01JTESTEXHAUSTAAAAAAAAAAAA",
	}
	_, err := poster.Persist(context.Background(), req)
	if !errors.Is(err, common.ErrPersistenceFailed) {
		t.Fatalf("expected ErrPersistenceFailed, got %v", err)
	}
	if store.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", store.calls)
	}
	if len(pub.payloads) != 1 {
		t.Fatalf("expected one fallback payload, got %d", len(pub.payloads))
	}
	got, ok := pub.payloads[0].(PersistRequest)
	if !ok || got.StreamID != req.StreamID {
		t.Fatalf("fallback payload mismatch: %+v", pub.payloads[0])
	}
}
