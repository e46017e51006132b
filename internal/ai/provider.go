package ai

import "context"

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatConfig carries per-request generation settings. Credentials come from
// the resolved bot, never from process-level configuration.
type ChatConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Streamer produces a finite, single-consumption sequence of content deltas.
// The producer must stop issuing upstream reads promptly once ctx is done.
type Streamer interface {
	StreamChat(ctx context.Context, cfg ChatConfig, messages []Message) (<-chan string, <-chan error)
}
