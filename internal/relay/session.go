package relay

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/storytellr/relay/internal/message"
)

// Session is the transient, in-process state of one generation stream. It is
// owned by the orchestrator goroutine handling the request and is removed
// from the registry when the connection ends.
type Session struct {
	StreamID   string
	TargetKind message.TargetKind
	TargetID   uint64
	StartedAt  time.Time

	mu        sync.Mutex
	buf       strings.Builder
	cancelled bool
	cancel    context.CancelFunc
}

func (s *Session) Append(delta string) {
	s.mu.Lock()
	s.buf.WriteString(delta)
	s.mu.Unlock()
}

func (s *Session) Content() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

// Cancel flags the session and fires its cancel func. Safe to call from any
// goroutine; used by the explicit cancel endpoint.
func (s *Session) Cancel() {
	s.mu.Lock()
	s.cancelled = true
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Session) CancelRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// Registry tracks active sessions by stream id so a cancel request can reach
// the goroutine running that stream.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

func (r *Registry) add(s *Session) {
	r.mu.Lock()
	r.sessions[s.StreamID] = s
	r.mu.Unlock()
}

func (r *Registry) remove(streamID string) {
	r.mu.Lock()
	delete(r.sessions, streamID)
	r.mu.Unlock()
}

// Cancel cancels the active stream with the given id, reporting whether one
// was found.
func (r *Registry) Cancel(streamID string) bool {
	r.mu.Lock()
	s, ok := r.sessions[streamID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	s.Cancel()
	return true
}
