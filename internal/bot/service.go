package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/storytellr/relay/internal/common"
)

type Service struct {
	repo *Repo
}

func NewService(repo *Repo) *Service {
	return &Service{repo: repo}
}

type CreateBotRequest struct {
	Name         string  `json:"name" binding:"required"`
	Model        string  `json:"model" binding:"required"`
	AccessKey    string  `json:"access_key" binding:"required"`
	AccessPath   string  `json:"access_path"`
	ContextSize  int     `json:"context_size"`
	MaxTokens    int     `json:"max_tokens"`
	Temperature  float64 `json:"temperature"`
	SystemPrompt string  `json:"system_prompt"`
	IsDefault    bool    `json:"is_default"`
}

func (s *Service) CreateBot(ctx context.Context, userID string, req *CreateBotRequest) (*Bot, error) {
	b := &Bot{
		UserID:       userID,
		Name:         strings.TrimSpace(req.Name),
		Model:        strings.TrimSpace(req.Model),
		AccessKey:    req.AccessKey,
		AccessPath:   req.AccessPath,
		ContextSize:  req.ContextSize,
		MaxTokens:    req.MaxTokens,
		Temperature:  req.Temperature,
		SystemPrompt: req.SystemPrompt,
		IsDefault:    req.IsDefault,
	}
	if b.Name == "" || b.Model == "" {
		return nil, fmt.Errorf("name and model required: %w", common.ErrInvalidRequest)
	}
	if b.ContextSize <= 0 {
		b.ContextSize = 4096
	}
	if b.MaxTokens <= 0 {
		b.MaxTokens = 1000
	}
	if b.Temperature <= 0 {
		b.Temperature = 0.7
	}
	if err := s.repo.CreateBot(ctx, b); err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return b, nil
}

const (
	demoModel   = "deepseek-chat"
	demoKeyName = "Demo Bot"
)

// CreateDemoBot provisions a starter bot along with a freshly minted
// provider key. The key is stored on the bot row and never echoed back
// through bot reads.
func (s *Service) CreateDemoBot(ctx context.Context, userID string) (*Bot, error) {
	token, err := common.NewStreamID()
	if err != nil {
		return nil, err
	}
	b := &Bot{
		UserID:      userID,
		Name:        demoKeyName,
		Model:       demoModel,
		AccessKey:   "demo-" + strings.ToLower(token),
		ContextSize: 4096,
		MaxTokens:   1000,
		Temperature: 0.7,
		IsDefault:   true,
	}
	if err := s.repo.CreateBot(ctx, b); err != nil {
		return nil, fmt.Errorf("create demo bot: %w", err)
	}
	return b, nil
}
