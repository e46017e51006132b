package bot

import "time"

// Bot is a named generation configuration owned by a user. The relay only
// reads bots during resolution; mutation happens through provisioning.
type Bot struct {
	ID          uint64  `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      string  `gorm:"type:varchar(64);index;not null" json:"-"`
	Name        string  `gorm:"type:varchar(128);not null" json:"name"`
	Model       string  `gorm:"type:varchar(128);not null" json:"model"`
	AccessKey   string  `gorm:"type:text;not null" json:"-"`
	AccessPath  string  `gorm:"type:varchar(255)" json:"access_path,omitempty"`
	ContextSize int     `gorm:"not null;default:4096" json:"context_size"`
	MaxTokens   int     `gorm:"not null;default:1000" json:"max_tokens"`
	Temperature float64 `gorm:"not null;default:0.7" json:"temperature"`

	SystemPrompt string `gorm:"type:text" json:"system_prompt,omitempty"`

	IsDefault bool `gorm:"index;not null;default:false" json:"is_default"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Bot) TableName() string { return "bots" }

// Conversation groups messages under a character/persona pairing. BotID is
// the optional conversation-level bot binding consulted during resolution.
type Conversation struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        string    `gorm:"type:varchar(64);index;not null" json:"-"`
	CharacterID   uint64    `gorm:"index" json:"character_id"`
	PersonaID     uint64    `gorm:"index" json:"persona_id"`
	Title         string    `gorm:"type:varchar(255)" json:"title"`
	MessageCount  int       `gorm:"not null;default:0" json:"message_count"`
	LastMessageAt time.Time `json:"last_message_at"`
	BotID         *uint64   `gorm:"index" json:"bot_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Conversation) TableName() string { return "conversations" }
