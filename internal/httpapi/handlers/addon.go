package handlers

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/storytellr/relay/internal/common"
	"github.com/storytellr/relay/internal/proxy"
)

// addonProvider names the upstream for transform purposes; only openrouter
// requests receive the reasoning rewrite.
const addonProvider = "openrouter"

func (h *Handler) addonAuthorized(c *gin.Context) bool {
	if h.Cfg.AddonAPIKey == "" {
		return false
	}
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return false
	}
	got := strings.TrimSpace(header[len("bearer "):])
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.Cfg.AddonAPIKey)) == 1
}

// AddonChatCompletions is the independently gated passthrough: it rewrites
// the payload per the configured transforms and forwards it to the generic
// chat-completions upstream, streaming the response body back unchanged.
func (h *Handler) AddonChatCompletions(c *gin.Context) {
	if !h.addonAuthorized(c) {
		common.Fail(c, http.StatusUnauthorized, 40110, "invalid addon credentials")
		return
	}

	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	model, _ := payload["model"].(string)
	payload = proxy.ApplyInjectionTag(payload, h.Transforms)
	payload = proxy.ApplyProviderTransforms(payload, addonProvider, model, h.Transforms)

	body, err := json.Marshal(payload)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodPost, h.Cfg.AddonUpstreamURL, bytes.NewReader(body))
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if h.Cfg.AddonUpstreamKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.Cfg.AddonUpstreamKey)
	}

	resp, err := h.Upstream.Do(req)
	if err != nil {
		common.Fail(c, http.StatusBadGateway, 50210, "upstream request failed")
		return
	}
	defer resp.Body.Close()

	c.Status(resp.StatusCode)
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		c.Header("Content-Type", ct)
	}

	flusher, canFlush := c.Writer.(http.Flusher)
	buf := make([]byte, 4*1024)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := c.Writer.Write(buf[:n]); werr != nil {
				return
			}
			if canFlush {
				flusher.Flush()
			}
		}
		if err != nil {
			// on EOF the body is done; any other error is unrecoverable
			// mid-body, the status line has already gone out
			return
		}
	}
}
