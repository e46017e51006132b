package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/storytellr/relay/internal/bot"
	"github.com/storytellr/relay/internal/common"
)

// AuthTest validates the bearer credential and, when a bot_id is supplied,
// checks that the caller can see that bot.
func (h *Handler) AuthTest(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var botID uint64
	if v := c.Query("bot_id"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			common.Fail(c, http.StatusBadRequest, 10003, "invalid bot_id")
			return
		}
		botID = n
	}

	b, err := h.Resolver.Resolve(c.Request.Context(), uid, botID, 0)
	if err != nil {
		common.FailErr(c, err)
		return
	}

	common.Ok(c, gin.H{"user_id": uid, "bot": b.Name})
}

func (h *Handler) CreateBot(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req bot.CreateBotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	b, err := h.Bots.CreateBot(c.Request.Context(), uid, &req)
	if err != nil {
		common.FailErr(c, err)
		return
	}

	common.Ok(c, b)
}

// CreateDemoBot provisions a starter bot with a freshly minted provider key.
func (h *Handler) CreateDemoBot(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	b, err := h.Bots.CreateDemoBot(c.Request.Context(), uid)
	if err != nil {
		common.FailErr(c, err)
		return
	}

	common.Ok(c, b)
}
