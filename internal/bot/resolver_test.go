package bot

import (
	"context"
	"errors"
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
	if err := db.AutoMigrate(&Bot{}, &Conversation{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedBot(t *testing.T, db *gorm.DB, b *Bot) *Bot {
	t.Helper()
	if err := db.Create(b).Error; err != nil {
		t.Fatalf("seed bot: %v", err)
	}
	return b
}

func TestResolve_ExplicitBotWins(t *testing.T) {
	db := openTestDB(t)
	r := NewResolver(NewRepo(db), nil)

	seedBot(t, db, &Bot{UserID: "u1", Name: "default", Model: "m", AccessKey: "k", IsDefault: true})
	explicit := seedBot(t, db, &Bot{UserID: "u1", Name: "explicit", Model: "m", AccessKey: "k"})

	bound := seedBot(t, db, &Bot{UserID: "u1", Name: "bound", Model: "m", AccessKey: "k"})
	conv := &Conversation{UserID: "u1", BotID: &bound.ID}
	if err := db.Create(conv).Error; err != nil {
		t.Fatalf("seed conversation: %v", err)
	}

	got, err := r.Resolve(context.Background(), "u1", explicit.ID, conv.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.ID != explicit.ID {
		t.Fatalf("explicit bot must win over binding and default, got %q", got.Name)
	}
}

func TestResolve_ExplicitBotWrongOwner(t *testing.T) {
	db := openTestDB(t)
	r := NewResolver(NewRepo(db), nil)

	other := seedBot(t, db, &Bot{UserID: "u2", Name: "theirs", Model: "m", AccessKey: "k"})

	_, err := r.Resolve(context.Background(), "u1", other.ID, 0)
	if !errors.Is(err, common.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestResolve_ExplicitBotAbsent(t *testing.T) {
	db := openTestDB(t)
	r := NewResolver(NewRepo(db), nil)

	_, err := r.Resolve(context.Background(), "u1", 999, 0)
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolve_ConversationBoundBot(t *testing.T) {
	db := openTestDB(t)
	r := NewResolver(NewRepo(db), nil)

	seedBot(t, db, &Bot{UserID: "u1", Name: "default", Model: "m", AccessKey: "k", IsDefault: true})
	bound := seedBot(t, db, &Bot{UserID: "u1", Name: "bound", Model: "m", AccessKey: "k"})

	conv := &Conversation{UserID: "u1", BotID: &bound.ID}
	if err := db.Create(conv).Error; err != nil {
		t.Fatalf("seed conversation: %v", err)
	}

	got, err := r.Resolve(context.Background(), "u1", 0, conv.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.ID != bound.ID {
		t.Fatalf("conversation-bound bot must win over default, got %q", got.Name)
	}
}

func TestResolve_DefaultBot(t *testing.T) {
	db := openTestDB(t)
	r := NewResolver(NewRepo(db), nil)

	seedBot(t, db, &Bot{UserID: "u1", Name: "older", Model: "m", AccessKey: "k"})
	def := seedBot(t, db, &Bot{UserID: "u1", Name: "default", Model: "m", AccessKey: "k", IsDefault: true})

	// unbound conversation: resolution falls through to the default branch
	conv := &Conversation{UserID: "u1"}
	if err := db.Create(conv).Error; err != nil {
		t.Fatalf("seed conversation: %v", err)
	}

	got, err := r.Resolve(context.Background(), "u1", 0, conv.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.ID != def.ID {
		t.Fatalf("expected default bot, got %q", got.Name)
	}
}

func TestResolve_LatestBotFallback(t *testing.T) {
	db := openTestDB(t)
	r := NewResolver(NewRepo(db), nil)

	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seedBot(t, db, &Bot{UserID: "u1", Name: "stale", Model: "m", AccessKey: "k", UpdatedAt: old})
	latest := seedBot(t, db, &Bot{UserID: "u1", Name: "fresh", Model: "m", AccessKey: "k", UpdatedAt: old.Add(time.Hour)})

	got, err := r.Resolve(context.Background(), "u1", 0, 0)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.ID != latest.ID {
		t.Fatalf("expected most recently updated bot, got %q", got.Name)
	}
}

func TestResolve_LatestBotTieBreakByID(t *testing.T) {
	db := openTestDB(t)
	r := NewResolver(NewRepo(db), nil)

	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seedBot(t, db, &Bot{UserID: "u1", Name: "low", Model: "m", AccessKey: "k", UpdatedAt: ts})
	high := seedBot(t, db, &Bot{UserID: "u1", Name: "high", Model: "m", AccessKey: "k", UpdatedAt: ts})

	got, err := r.Resolve(context.Background(), "u1", 0, 0)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.ID != high.ID {
		t.Fatalf("tie must break to highest id, got %q", got.Name)
	}
}

func TestResolve_NoUsableBot(t *testing.T) {
	db := openTestDB(t)
	r := NewResolver(NewRepo(db), nil)

	// other users' bots must not leak into resolution
	seedBot(t, db, &Bot{UserID: "u2", Name: "theirs", Model: "m", AccessKey: "k"})

	_, err := r.Resolve(context.Background(), "u1", 0, 0)
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateBot_SingleDefaultInvariant(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	first := &Bot{UserID: "u1", Name: "first", Model: "m", AccessKey: "k", IsDefault: true}
	if err := repo.CreateBot(ctx, first); err != nil {
		t.Fatalf("create first: %v", err)
	}
	second := &Bot{UserID: "u1", Name: "second", Model: "m", AccessKey: "k", IsDefault: true}
	if err := repo.CreateBot(ctx, second); err != nil {
		t.Fatalf("create second: %v", err)
	}

	var defaults []Bot
	if err := db.Where("user_id = ? AND is_default = ?", "u1", true).Find(&defaults).Error; err != nil {
		t.Fatalf("query defaults: %v", err)
	}
	if len(defaults) != 1 || defaults[0].ID != second.ID {
		t.Fatalf("exactly the newest bot must be default, got %d rows", len(defaults))
	}
}
