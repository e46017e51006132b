package message

import "time"

// Message is an utterance in the primary conversation timeline. StreamID is
// the idempotency key: the storage layer enforces its uniqueness, so the same
// generation can be persisted more than once without duplicating rows.
type Message struct {
	ID             uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID uint64 `gorm:"index;not null" json:"conversation_id"`
	UserID         string `gorm:"type:varchar(64);index;not null" json:"-"`
	Content        string `gorm:"type:text;not null" json:"content"`

	IsUserAuthor bool `gorm:"not null;default:false" json:"is_user_author"`
	IsActive     bool `gorm:"not null;default:true" json:"is_active"`
	IsStreaming  bool `gorm:"not null;default:false" json:"is_streaming"`
	IsComplete   bool `gorm:"not null;default:true" json:"is_complete"`

	StreamID string `gorm:"type:varchar(26);uniqueIndex;not null" json:"stream_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Message) TableName() string { return "messages" }

// Alternative is a sibling branch attached to an assistant message, created
// by the reroll flow as a streaming placeholder and reconciled through the
// same safe-post path as primary messages.
type Alternative struct {
	ID              uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	ParentMessageID uint64 `gorm:"index;not null" json:"parent_message_id"`
	ConversationID  uint64 `gorm:"index;not null" json:"conversation_id"`
	UserID          string `gorm:"type:varchar(64);index;not null" json:"-"`
	Content         string `gorm:"type:text;not null" json:"content"`

	IsUserAuthor bool `gorm:"not null;default:false" json:"is_user_author"`
	IsActive     bool `gorm:"not null;default:true" json:"is_active"`
	IsStreaming  bool `gorm:"not null;default:false" json:"is_streaming"`
	IsComplete   bool `gorm:"not null;default:true" json:"is_complete"`

	StreamID string `gorm:"type:varchar(26);uniqueIndex;not null" json:"stream_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Alternative) TableName() string { return "message_alternatives" }
