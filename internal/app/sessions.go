package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/tinymerit/internal/domain/history"
	"github.com/okian/tinymerit/internal/domain/payee"
	"github.com/okian/tinymerit/pkg/metrics"
)

// Session is one browser's state: its payee cart, history view and
// collapsed groups.
type Session struct {
	id string

	mu        sync.Mutex
	cart      payee.List
	loader    *history.Loader
	collapsed history.Collapsed
	lastSeen  time.Time
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Cart returns the current payee list.
func (s *Session) Cart() payee.List {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart
}

// UpdateCart replaces the cart with fn's result unless fn fails.
func (s *Session) UpdateCart(fn func(payee.List) (payee.List, error)) (payee.List, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := fn(s.cart)
	if err != nil {
		return s.cart, err
	}
	s.cart = next
	return next, nil
}

// ToggleGroup folds or unfolds a history group and reports the new state.
func (s *Session) ToggleGroup(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collapsed.Toggle(id)
}

// IsCollapsed reports whether a history group is folded.
func (s *Session) IsCollapsed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collapsed.IsCollapsed(id)
}

func (s *Session) historyLoader(newLoader func() *history.Loader) *history.Loader {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loader == nil {
		s.loader = newLoader()
	}
	return s.loader
}

func (s *Session) resetHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loader = nil
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = now
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Sessions holds live sessions and expires idle ones.
type Sessions struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessions creates an empty registry. Sessions idle longer than ttl are
// removed by Sweep.
func NewSessions(ttl time.Duration) *Sessions {
	return &Sessions{ttl: ttl, now: time.Now, sessions: make(map[string]*Session)}
}

// Get returns the session for id, creating a new one with a fresh id when id
// is empty or unknown.
func (r *Sessions) Get(id string) *Session {
	now := r.now()
	if id != "" {
		r.mu.RLock()
		s, ok := r.sessions[id]
		r.mu.RUnlock()
		if ok {
			s.touch(now)
			return s
		}
	}

	s := &Session{id: uuid.NewString(), lastSeen: now}
	r.mu.Lock()
	r.sessions[s.id] = s
	n := len(r.sessions)
	r.mu.Unlock()
	metrics.UpdateActiveSessions(n)
	return s
}

// Len returns the number of live sessions.
func (r *Sessions) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep removes sessions idle longer than the ttl and returns how many.
func (r *Sessions) Sweep() int {
	if r.ttl <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.ttl)
	r.mu.Lock()
	removed := 0
	for id, s := range r.sessions {
		if s.idleSince().Before(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}
	n := len(r.sessions)
	r.mu.Unlock()
	metrics.UpdateActiveSessions(n)
	return removed
}

// ResetHistory drops every session's history view.
func (r *Sessions) ResetHistory() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		s.resetHistory()
	}
}

// Run sweeps every interval until ctx ends or stop is closed.
func (r *Sessions) Run(ctx context.Context, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
