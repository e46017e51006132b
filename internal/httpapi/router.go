package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/storytellr/relay/internal/common"
	"github.com/storytellr/relay/internal/httpapi/handlers"
	"github.com/storytellr/relay/internal/httpapi/middleware"
)

func NewRouter(h *handlers.Handler) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/healthz", h.Healthz)

	// addon path carries its own credential, independent of user JWTs
	r.POST("/addon/v1/chat/completions", h.AddonChatCompletions)

	authed := r.Group("/")
	authed.Use(middleware.AuthRequired(h.Cfg.JWTSecret))
	authed.GET("/auth/test", h.AuthTest)
	authed.GET("/v1/message-by-stream-id", h.MessageByStreamID)
	authed.GET("/v1/messages/:message_id/alternatives", h.ListAlternatives)
	authed.POST("/v1/stream", h.Stream)
	authed.POST("/v1/reroll", h.Reroll)
	authed.POST("/v1/streams/:stream_id/cancel", h.CancelStream)
	authed.POST("/v1/bots", h.CreateBot)
	authed.POST("/v1/bots/demo", h.CreateDemoBot)

	return r
}
