package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/storytellr/relay/internal/ai"
	"github.com/storytellr/relay/internal/common"
	"github.com/storytellr/relay/internal/relay"
	"gorm.io/gorm"
)

type streamReq struct {
	BotID          uint64       `json:"bot_id"`
	ConversationID uint64       `json:"conversation_id" binding:"required"`
	Messages       []ai.Message `json:"messages"`
	Prompt         string       `json:"prompt"`
	System         string       `json:"system"`
	StreamID       string       `json:"stream_id"`
	IsAlternative  bool         `json:"is_alternative"`
	AlternativeID  uint64       `json:"alternative_id"`
}

// Stream runs a generation and relays it as SSE. Validation failures are
// plain HTTP errors; once the event stream starts, failures arrive as
// `error` events because the 200 status line is already committed.
func (h *Handler) Stream(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req streamReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	stream, err := h.Orch.Stream(c.Request.Context(), relay.Request{
		UserID:         uid,
		BotID:          req.BotID,
		ConversationID: req.ConversationID,
		Messages:       req.Messages,
		Prompt:         req.Prompt,
		System:         req.System,
		StreamID:       req.StreamID,
		IsAlternative:  req.IsAlternative,
		AlternativeID:  req.AlternativeID,
	})
	if err != nil {
		common.FailErr(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // helpful if behind nginx
	c.Status(http.StatusOK)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		fmt.Fprintf(c.Writer, "event: error\ndata: {\"code\":\"no_flush\",\"message\":\"streaming unsupported\"}\n\n")
		return
	}

	writeJSON := func(event string, payload any) {
		b, err := json.Marshal(payload)
		if err != nil {
			fmt.Fprintf(c.Writer, "event: error\ndata: {\"code\":\"encode\",\"message\":\"json marshal failed\"}\n\n")
			flusher.Flush()
			return
		}
		fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, b)
		flusher.Flush()
	}

	interval := h.Cfg.PingInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx := c.Request.Context()

	for {
		select {
		case ev, ok := <-stream.Events:
			if !ok {
				return
			}
			switch ev.Type {
			case relay.EventToken:
				writeJSON("token", gin.H{
					"delta":     ev.Delta,
					"stream_id": ev.StreamID,
				})
			case relay.EventError:
				writeJSON("error", gin.H{
					"code":      ev.Code,
					"message":   ev.Message,
					"stream_id": ev.StreamID,
				})
			case relay.EventDone:
				done := gin.H{"stream_id": ev.StreamID}
				if ev.AlternativeID != 0 {
					done["alternative_id"] = ev.AlternativeID
				}
				if ev.MessageID != 0 {
					done["message_id"] = ev.MessageID
				}
				writeJSON("done", done)
			}

		case <-ticker.C:
			fmt.Fprintf(c.Writer, "event: ping\ndata: \n\n")
			flusher.Flush()

		case <-ctx.Done():
			// orchestrator sees the same cancellation and persists the
			// partial buffer on its own
			return
		}
	}
}

// CancelStream cancels an in-flight stream by id.
func (h *Handler) CancelStream(c *gin.Context) {
	if _, ok := userIDFromContext(c); !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	streamID := c.Param("stream_id")
	if streamID == "" {
		common.Fail(c, http.StatusBadRequest, 10004, "stream_id required")
		return
	}

	if !h.Registry.Cancel(streamID) {
		common.Fail(c, http.StatusNotFound, 40403, "no active stream with that id")
		return
	}
	common.Ok(c, gin.H{"stream_id": streamID, "cancelled": true})
}

type rerollReq struct {
	ParentMessageID uint64 `json:"parent_message_id" binding:"required"`
	ConversationID  uint64 `json:"conversation_id" binding:"required"`
}

// Reroll creates a streaming placeholder alternative for an assistant
// message, to be filled by a subsequent stream request.
func (h *Handler) Reroll(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req rerollReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	alt, streamID, err := h.Rerolls.CreateAlternative(c.Request.Context(), uid, req.ParentMessageID, req.ConversationID)
	if err != nil {
		common.FailErr(c, err)
		return
	}

	common.Ok(c, gin.H{"alternative": alt, "stream_id": streamID})
}

// ListAlternatives returns the reroll branches of a message, oldest first.
func (h *Handler) ListAlternatives(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	messageID, err := strconv.ParseUint(c.Param("message_id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10003, "invalid message_id")
		return
	}

	ctx := c.Request.Context()
	parent, err := h.Msgs.GetMessageByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40404, "record not found")
			return
		}
		common.FailErr(c, err)
		return
	}
	// ownership failures are indistinguishable from absence
	if parent.UserID != uid {
		common.Fail(c, http.StatusNotFound, 40404, "record not found")
		return
	}

	alts, err := h.Msgs.ListAlternatives(ctx, uid, messageID)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.Ok(c, gin.H{"message_id": messageID, "alternatives": alts})
}

// MessageByStreamID resolves a persisted record by its stream identifier,
// checking the primary timeline first, then alternatives.
func (h *Handler) MessageByStreamID(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	streamID := c.Query("stream_id")
	if streamID == "" {
		common.Fail(c, http.StatusBadRequest, 10004, "stream_id required")
		return
	}

	ctx := c.Request.Context()

	if m, err := h.Msgs.GetMessageByStreamID(ctx, streamID); err == nil {
		if m.UserID != uid {
			common.Fail(c, http.StatusNotFound, 40404, "record not found")
			return
		}
		common.Ok(c, gin.H{"kind": "message", "record": m})
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		common.FailErr(c, err)
		return
	}

	a, err := h.Msgs.GetAlternativeByStreamID(ctx, streamID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40404, "record not found")
			return
		}
		common.FailErr(c, err)
		return
	}
	if a.UserID != uid {
		common.Fail(c, http.StatusNotFound, 40404, "record not found")
		return
	}
	common.Ok(c, gin.H{"kind": "alternative", "record": a})
}
