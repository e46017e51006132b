package message

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

var messageUpsertColumns = []string{"content", "is_streaming", "is_complete", "updated_at"}

// UpsertMessageByStreamID inserts the message or, when the stream id already
// exists, updates the generated fields of the existing row. The returned id
// is always the stored row's id.
func (r *Repo) UpsertMessageByStreamID(ctx context.Context, m *Message) (uint64, error) {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stream_id"}},
		DoUpdates: clause.AssignmentColumns(messageUpsertColumns),
	}).Create(m).Error
	if err != nil {
		return 0, err
	}
	stored, err := r.GetMessageByStreamID(ctx, m.StreamID)
	if err != nil {
		return 0, err
	}
	return stored.ID, nil
}

func (r *Repo) UpsertAlternativeByStreamID(ctx context.Context, a *Alternative) (uint64, error) {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stream_id"}},
		DoUpdates: clause.AssignmentColumns(messageUpsertColumns),
	}).Create(a).Error
	if err != nil {
		return 0, err
	}
	stored, err := r.GetAlternativeByStreamID(ctx, a.StreamID)
	if err != nil {
		return 0, err
	}
	return stored.ID, nil
}

// UpdateAlternativeByID reconciles a reroll placeholder created before
// streaming began.
func (r *Repo) UpdateAlternativeByID(ctx context.Context, id uint64, content string, isComplete bool) error {
	res := r.db.WithContext(ctx).Model(&Alternative{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"content":      content,
			"is_streaming": false,
			"is_complete":  isComplete,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *Repo) CreateAlternative(ctx context.Context, a *Alternative) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *Repo) GetMessageByID(ctx context.Context, id uint64) (*Message, error) {
	var m Message
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *Repo) GetMessageByStreamID(ctx context.Context, streamID string) (*Message, error) {
	var m Message
	if err := r.db.WithContext(ctx).First(&m, "stream_id = ?", streamID).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *Repo) GetAlternativeByID(ctx context.Context, id uint64) (*Alternative, error) {
	var a Alternative
	if err := r.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *Repo) GetAlternativeByStreamID(ctx context.Context, streamID string) (*Alternative, error) {
	var a Alternative
	if err := r.db.WithContext(ctx).First(&a, "stream_id = ?", streamID).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *Repo) ListAlternatives(ctx context.Context, userID string, parentMessageID uint64) ([]Alternative, error) {
	var alts []Alternative
	if err := r.db.WithContext(ctx).
		Where("parent_message_id = ? AND user_id = ?", parentMessageID, userID).
		Order("id ASC").
		Find(&alts).Error; err != nil {
		return nil, err
	}
	return alts, nil
}
