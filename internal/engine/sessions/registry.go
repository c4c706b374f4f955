package sessions

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"

	"prettyqr/internal/engine/studio"
)

var ErrTooManySessions = errors.New("too many sessions")

type Session struct {
	ID        string
	Pipeline  *studio.Pipeline
	CreatedAt time.Time

	mu         sync.Mutex
	lastAccess time.Time
}

func (s *Session) LastAccess() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccess
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastAccess = now
	s.mu.Unlock()
}

// Factory builds the pipeline for a new session.
type Factory func() *studio.Pipeline

type Registry struct {
	factory     Factory
	ttl         time.Duration
	maxSessions int
	clock       clockwork.Clock

	mu    sync.RWMutex
	store map[string]*Session
}

// NewRegistry returns an empty registry. A zero ttl disables expiry and a
// zero maxSessions disables the bound.
func NewRegistry(factory Factory, ttl time.Duration, maxSessions int, clock clockwork.Clock) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Registry{
		factory:     factory,
		ttl:         ttl,
		maxSessions: maxSessions,
		clock:       clock,
		store:       make(map[string]*Session),
	}
}

func (r *Registry) Create() (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxSessions > 0 && len(r.store) >= r.maxSessions {
		return nil, errors.Wrapf(ErrTooManySessions, "limit %d", r.maxSessions)
	}

	now := r.clock.Now()
	s := &Session{
		ID:         uuid.New().String(),
		Pipeline:   r.factory(),
		CreatedAt:  now,
		lastAccess: now,
	}
	r.store[s.ID] = s
	return s, nil
}

// Get returns the session and marks it as used.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	s, ok := r.store[id]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}

	s.touch(r.clock.Now())
	return s, true
}

func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	s, ok := r.store[id]
	delete(r.store, id)
	r.mu.Unlock()

	if ok {
		s.Pipeline.Close()
	}
	return ok
}

// Sweep closes and removes sessions idle for longer than the ttl. It returns
// the number removed.
func (r *Registry) Sweep(now time.Time) int {
	if r.ttl <= 0 {
		return 0
	}

	var expired []*Session
	r.mu.Lock()
	for id, s := range r.store {
		if now.Sub(s.LastAccess()) > r.ttl {
			expired = append(expired, s)
			delete(r.store, id)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		s.Pipeline.Close()
	}
	return len(expired)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.store)
}

func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := r.store
	r.store = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range all {
		s.Pipeline.Close()
	}
}
