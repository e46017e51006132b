package relay

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/storytellr/relay/internal/ai"
	"github.com/storytellr/relay/internal/bot"
	"github.com/storytellr/relay/internal/common"
	"github.com/storytellr/relay/internal/message"
	"github.com/storytellr/relay/internal/ratelimit"
	"gorm.io/gorm"
)

const (
	EventToken = "token"
	EventError = "error"
	EventDone  = "done"
)

// Event is one SSE-visible occurrence on a stream. Ping heartbeats are not
// events; the HTTP layer emits them on its own timer.
type Event struct {
	Type          string `json:"type"`
	Delta         string `json:"delta,omitempty"`
	Code          string `json:"code,omitempty"`
	Message       string `json:"message,omitempty"`
	StreamID      string `json:"stream_id,omitempty"`
	MessageID     uint64 `json:"message_id,omitempty"`
	AlternativeID uint64 `json:"alternative_id,omitempty"`
}

type Request struct {
	UserID         string
	BotID          uint64
	ConversationID uint64
	Messages       []ai.Message
	Prompt         string
	System         string
	StreamID       string
	IsAlternative  bool
	AlternativeID  uint64
}

// Stream is the handle returned to the HTTP layer once streaming has been
// admitted: the session (for bookkeeping) and the event sequence to forward.
type Stream struct {
	Session *Session
	Events  <-chan Event
}

type Orchestrator struct {
	bots     *bot.Repo
	resolver *bot.Resolver
	messages *message.Repo
	streamer ai.Streamer
	poster   *message.SafePoster
	limiter  *ratelimit.Limiter
	registry *Registry
	timeout  time.Duration

	// persistTimeout bounds the PERSISTING phase, which runs detached from
	// the (possibly dead) request context.
	persistTimeout time.Duration
}

func NewOrchestrator(
	bots *bot.Repo,
	resolver *bot.Resolver,
	messages *message.Repo,
	streamer ai.Streamer,
	poster *message.SafePoster,
	limiter *ratelimit.Limiter,
	registry *Registry,
	timeout time.Duration,
) *Orchestrator {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Orchestrator{
		bots:           bots,
		resolver:       resolver,
		messages:       messages,
		streamer:       streamer,
		poster:         poster,
		limiter:        limiter,
		registry:       registry,
		timeout:        timeout,
		persistTimeout: 30 * time.Second,
	}
}

// buildMessages normalizes the two accepted input shapes: an explicit message
// list, or a system+prompt pair.
func buildMessages(req Request, systemPrompt string) []ai.Message {
	if len(req.Messages) > 0 {
		return req.Messages
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil
	}
	system := req.System
	if system == "" {
		system = systemPrompt
	}
	msgs := make([]ai.Message, 0, 2)
	if system != "" {
		msgs = append(msgs, ai.Message{Role: "system", Content: system})
	}
	return append(msgs, ai.Message{Role: "user", Content: req.Prompt})
}

// Stream validates the request, admits it, and launches the streaming
// goroutine. Errors returned here happen before any SSE bytes are written
// and surface as plain HTTP responses; everything after is event traffic.
func (o *Orchestrator) Stream(ctx context.Context, req Request) (*Stream, error) {
	if req.ConversationID == 0 {
		return nil, fmt.Errorf("conversation_id required: %w", common.ErrInvalidRequest)
	}
	if len(req.Messages) == 0 && strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("messages or prompt required: %w", common.ErrInvalidRequest)
	}

	conv, err := o.bots.GetConversation(ctx, req.ConversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("conversation %d: %w", req.ConversationID, common.ErrNotFound)
		}
		return nil, err
	}
	if conv.UserID != req.UserID {
		return nil, fmt.Errorf("conversation %d: %w", req.ConversationID, common.ErrForbidden)
	}

	if !o.limiter.Admit(req.UserID) {
		return nil, common.ErrRateLimited
	}

	b, err := o.resolver.Resolve(ctx, req.UserID, req.BotID, req.ConversationID)
	if err != nil {
		return nil, err
	}

	msgs := buildMessages(req, b.SystemPrompt)

	targetKind := message.TargetMessage
	var targetID, parentID uint64
	streamID := strings.TrimSpace(req.StreamID)

	if req.IsAlternative {
		targetKind = message.TargetAlternative
		switch {
		case req.AlternativeID != 0:
			alt, err := o.messages.GetAlternativeByID(ctx, req.AlternativeID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return nil, fmt.Errorf("alternative %d: %w", req.AlternativeID, common.ErrNotFound)
				}
				return nil, err
			}
			if alt.UserID != req.UserID {
				return nil, fmt.Errorf("alternative %d: %w", req.AlternativeID, common.ErrForbidden)
			}
			targetID = alt.ID
			parentID = alt.ParentMessageID
			if streamID == "" {
				streamID = alt.StreamID
			}
		case streamID != "":
			// an alternative stream must reconcile a placeholder created by
			// the reroll flow; the stream id is the only other way to name one
			alt, err := o.messages.GetAlternativeByStreamID(ctx, streamID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return nil, fmt.Errorf("no alternative with stream id %s: %w", streamID, common.ErrNotFound)
				}
				return nil, err
			}
			if alt.UserID != req.UserID {
				return nil, fmt.Errorf("alternative %d: %w", alt.ID, common.ErrForbidden)
			}
			targetID = alt.ID
			parentID = alt.ParentMessageID
		default:
			return nil, fmt.Errorf("alternative stream needs alternative_id or stream_id: %w", common.ErrInvalidRequest)
		}
	}

	if streamID == "" {
		streamID, err = common.NewStreamID()
		if err != nil {
			return nil, err
		}
	}

	sctx, cancel := context.WithTimeout(ctx, o.timeout)
	session := &Session{
		StreamID:   streamID,
		TargetKind: targetKind,
		TargetID:   targetID,
		StartedAt:  time.Now(),
		cancel:     cancel,
	}
	o.registry.add(session)

	events := make(chan Event, 64)
	go o.run(ctx, sctx, cancel, session, req, conv.ID, parentID, b, msgs, events)

	return &Stream{Session: session, Events: events}, nil
}

// run drives STREAMING through its terminal state, then PERSISTING and DONE.
func (o *Orchestrator) run(
	parent, sctx context.Context,
	cancel context.CancelFunc,
	session *Session,
	req Request,
	conversationID, parentMessageID uint64,
	b *bot.Bot,
	msgs []ai.Message,
	events chan<- Event,
) {
	defer close(events)
	defer o.registry.remove(session.StreamID)
	defer cancel()

	emit := func(e Event) {
		select {
		case events <- e:
		case <-parent.Done():
			// client is gone; nobody will read this event
		}
	}

	chunks, errs := o.streamer.StreamChat(sctx, ai.ChatConfig{
		BaseURL:     b.AccessPath,
		APIKey:      b.AccessKey,
		Model:       b.Model,
		Temperature: b.Temperature,
		MaxTokens:   b.MaxTokens,
	}, msgs)

	var upstreamErr error
	var timedOut, cancelled bool

streaming:
	for {
		select {
		case delta, ok := <-chunks:
			if !ok {
				select {
				case err := <-errs:
					if err != nil {
						upstreamErr = fmt.Errorf("%w: %v", common.ErrUpstream, err)
					}
				default:
				}
				break streaming
			}
			session.Append(delta)
			emit(Event{Type: EventToken, Delta: delta, StreamID: session.StreamID})

		case <-sctx.Done():
			if session.CancelRequested() || parent.Err() != nil {
				cancelled = true
			} else if errors.Is(sctx.Err(), context.DeadlineExceeded) {
				timedOut = true
			} else {
				cancelled = true
			}
			break streaming
		}
	}

	content := session.Content()

	switch {
	case timedOut:
		emit(Event{
			Type:     EventError,
			Code:     "timeout",
			Message:  "stream exceeded time budget",
			StreamID: session.StreamID,
		})
	case upstreamErr != nil:
		log.Printf("stream upstream error stream_id=%s buffered=%d err=%v",
			session.StreamID, len(content), upstreamErr)
		emit(Event{
			Type:     EventError,
			Code:     "upstream_error",
			Message:  upstreamErr.Error(),
			StreamID: session.StreamID,
		})
	}

	// FAILED with an empty buffer is the only terminal state with nothing to
	// persist. The stream still finishes with a done event so clients can
	// tear down without waiting for the connection to close.
	if upstreamErr != nil && content == "" {
		emit(Event{Type: EventDone, StreamID: session.StreamID})
		return
	}

	isComplete := !timedOut && !cancelled && upstreamErr == nil

	pctx, pcancel := context.WithTimeout(context.Background(), o.persistTimeout)
	defer pcancel()

	recordID, err := o.poster.Persist(pctx, message.PersistRequest{
		Kind:            session.TargetKind,
		TargetID:        session.TargetID,
		ConversationID:  conversationID,
		ParentMessageID: parentMessageID,
		UserID:          req.UserID,
		Content:         content,
		IsComplete:      isComplete,
		StreamID:        session.StreamID,
	})
	if err != nil {
		// tokens were already delivered; durability is degraded, the client
		// outcome stands
		log.Printf("stream persist failed stream_id=%s err=%v", session.StreamID, err)
	}

	done := Event{Type: EventDone, StreamID: session.StreamID}
	if session.TargetKind == message.TargetAlternative {
		done.AlternativeID = recordID
	} else {
		done.MessageID = recordID
	}
	emit(done)
}
