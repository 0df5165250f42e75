package dialog

import (
	"log/slog"
	"sync"

	"github.com/linearity/postbot/core/logger"
)

const inboxCapacity = 16

// Session tracks one conversation's wizard state. Sessions are created
// lazily, reused across flows and never removed from the registry.
type Session struct {
	conv int64

	mu     sync.Mutex
	owner  int64
	flow   string
	active bool
	inbox  chan Interaction
}

// Active reports whether a flow currently owns the session.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Owner returns the user id that started the current flow.
func (s *Session) Owner() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner
}

// Flow returns the name of the running flow, empty when idle.
func (s *Session) Flow() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flow
}

func (s *Session) begin(owner int64, flow string) (chan Interaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return nil, false
	}
	s.owner = owner
	s.flow = flow
	s.active = true
	s.inbox = make(chan Interaction, inboxCapacity)
	return s.inbox, true
}

func (s *Session) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
	s.owner = 0
	s.flow = ""
	s.inbox = nil
}

// deliver hands an interaction to the running flow without blocking the
// update pump. A saturated inbox drops the update.
func (s *Session) deliver(in Interaction) bool {
	s.mu.Lock()
	inbox := s.inbox
	active := s.active
	flow := s.flow
	s.mu.Unlock()
	if !active || inbox == nil {
		return false
	}
	select {
	case inbox <- in:
		return true
	default:
		logger.Warn(logger.Background(), "dialog", "inbox.drop",
			slog.Int64("chat_id", s.conv),
			slog.String("flow", flow),
		)
		return true
	}
}

// Registry holds sessions keyed by conversation id.
type Registry struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[int64]*Session)}
}

// Obtain returns the session for the conversation, creating it on first use.
func (r *Registry) Obtain(conv int64) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[conv]
	if !ok {
		s = &Session{conv: conv}
		r.sessions[conv] = s
	}
	return s
}

// Lookup returns the session for the conversation if one was ever created.
func (r *Registry) Lookup(conv int64) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[conv]
	return s, ok
}

// ActiveCount returns how many sessions currently run a flow.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, s := range r.sessions {
		if s.Active() {
			n++
		}
	}
	return n
}
