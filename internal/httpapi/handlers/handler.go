package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/storytellr/relay/internal/ai"
	"github.com/storytellr/relay/internal/bot"
	"github.com/storytellr/relay/internal/config"
	"github.com/storytellr/relay/internal/httpapi/middleware"
	"github.com/storytellr/relay/internal/message"
	"github.com/storytellr/relay/internal/proxy"
	"github.com/storytellr/relay/internal/ratelimit"
	"github.com/storytellr/relay/internal/relay"
	"gorm.io/gorm"
)

type Handler struct {
	Cfg      config.Config
	Bots     *bot.Service
	Resolver *bot.Resolver
	Msgs     *message.Repo
	Rerolls  *message.Rerolls
	Orch     *relay.Orchestrator
	Registry *relay.Registry

	Transforms proxy.TransformConfig
	Upstream   *http.Client
}

// NewHandler wires the full request pipeline. cache and fallback may be nil;
// the relay then runs without the bot cache / reconciliation queue.
func NewHandler(gdb *gorm.DB, cfg config.Config, cache bot.Cache, fallback message.FailedWritePublisher, streamer ai.Streamer) *Handler {
	botRepo := bot.NewRepo(gdb)
	resolver := bot.NewResolver(botRepo, cache)
	msgRepo := message.NewRepo(gdb)
	poster := message.NewSafePoster(msgRepo, fallback, cfg.PersistAttempts, cfg.PersistBackoff)
	limiter := ratelimit.NewLimiter(cfg.RateLimitCount, cfg.RateLimitWindow)
	registry := relay.NewRegistry()

	return &Handler{
		Cfg:      cfg,
		Bots:     bot.NewService(botRepo),
		Resolver: resolver,
		Msgs:     msgRepo,
		Rerolls:  message.NewRerolls(msgRepo),
		Orch: relay.NewOrchestrator(
			botRepo, resolver, msgRepo, streamer, poster, limiter, registry, cfg.StreamTimeout),
		Registry: registry,
		Transforms: proxy.TransformConfig{
			ForceReasoningEnabled:       cfg.ForceReasoningEnabled,
			ForceReasoningEffort:        cfg.ForceReasoningEffort,
			ForceReasoningModelPatterns: cfg.ForceReasoningPatterns,
			ForceReasoningOverride:      cfg.ForceReasoningOverride,
			EnableSystemInjectionTag:    cfg.InjectionTagEnabled,
			SystemInjectionTagName:      cfg.InjectionTagName,
		},
		Upstream: &http.Client{},
	}
}

func userIDFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
