package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Client speaks the OpenAI-compatible streaming chat-completions protocol.
// One Client serves all requests; credentials and endpoint travel in ChatConfig.
type Client struct {
	DefaultBaseURL string
	HTTPClient     *http.Client
}

func NewClient(defaultBaseURL string) *Client {
	if defaultBaseURL == "" {
		defaultBaseURL = "https://api.deepseek.com/v1"
	}
	return &Client{
		DefaultBaseURL: defaultBaseURL,
		// no client-level timeout: streams are bounded by the caller's ctx
		HTTPClient: &http.Client{},
	}
}

type chatReq struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatStreamResp struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// StreamChat issues a streaming completion request and forwards content deltas.
// The errs channel carries at most one error; both channels close when the
// sequence ends for any reason.
func (c *Client) StreamChat(ctx context.Context, cfg ChatConfig, messages []Message) (<-chan string, <-chan error) {
	chunks := make(chan string, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		if strings.TrimSpace(cfg.APIKey) == "" {
			errs <- errors.New("openai: api key is required")
			return
		}
		model := strings.TrimSpace(cfg.Model)
		if model == "" {
			errs <- errors.New("openai: model is required")
			return
		}

		baseURL := strings.TrimSpace(cfg.BaseURL)
		if baseURL == "" {
			baseURL = c.DefaultBaseURL
		}

		b, err := json.Marshal(chatReq{
			Model:       model,
			Messages:    messages,
			Stream:      true,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
		if err != nil {
			errs <- err
			return
		}

		url := fmt.Sprintf("%s/chat/completions", strings.TrimRight(baseURL, "/"))
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
		if err != nil {
			errs <- err
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			errs <- err
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
			msg := strings.TrimSpace(string(body))
			if msg == "" {
				msg = fmt.Sprintf("status %d", resp.StatusCode)
			}
			errs <- fmt.Errorf("openai: %s", msg)
			return
		}

		sc := bufio.NewScanner(resp.Body)
		buf := make([]byte, 0, 64*1024)
		sc.Buffer(buf, 2*1024*1024)

		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}
			var decoded chatStreamResp
			if err := json.Unmarshal([]byte(data), &decoded); err != nil {
				errs <- err
				return
			}
			if decoded.Error != nil && decoded.Error.Message != "" {
				errs <- errors.New(decoded.Error.Message)
				return
			}
			if len(decoded.Choices) == 0 {
				continue
			}
			delta := decoded.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			select {
			case chunks <- delta:
			case <-ctx.Done():
				return
			}
		}

		if err := sc.Err(); err != nil {
			// ctx cancellation surfaces as a read error on the body; the
			// consumer already knows it cancelled, so don't double-report
			if ctx.Err() == nil {
				errs <- err
			}
		}
	}()

	return chunks, errs
}
