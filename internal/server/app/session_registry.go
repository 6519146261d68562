package app

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"sandboxagent/internal/utils/id"
)

const defaultHistorySize = 16

// SessionRegistry holds the single active session slot and a bounded index of
// recently created sessions.
type SessionRegistry struct {
	mu     sync.Mutex
	active *Session
	recent *lru.Cache[string, *Session]

	newID func() string
	clock func() time.Time
}

// RegistryOption customizes a SessionRegistry.
type RegistryOption func(*SessionRegistry)

// WithIDGenerator overrides session id generation.
func WithIDGenerator(fn func() string) RegistryOption {
	return func(r *SessionRegistry) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// WithRegistryClock overrides the session creation clock.
func WithRegistryClock(fn func() time.Time) RegistryOption {
	return func(r *SessionRegistry) {
		if fn != nil {
			r.clock = fn
		}
	}
}

func NewSessionRegistry(historySize int, opts ...RegistryOption) (*SessionRegistry, error) {
	if historySize <= 0 {
		historySize = defaultHistorySize
	}
	recent, err := lru.New[string, *Session](historySize)
	if err != nil {
		return nil, fmt.Errorf("create session history: %w", err)
	}
	r := &SessionRegistry{
		recent: recent,
		newID:  id.NewSessionID,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// GetOrCreate returns the active session while it is running. Otherwise it
// creates a new session, makes it active and reports created=true.
func (r *SessionRegistry) GetOrCreate(prompt, workdir string) (session *Session, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil && r.active.Running() {
		return r.active, false
	}
	session = NewSession(r.newID(), prompt, workdir, r.clock())
	r.active = session
	r.recent.Add(session.ID(), session)
	return session, true
}

// Active returns the current or most recent session, or nil.
func (r *SessionRegistry) Active() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Lookup finds a recently created session by id. It does not change the
// creation order that Recent and eviction follow.
func (r *SessionRegistry) Lookup(sessionID string) (*Session, bool) {
	if active := r.Active(); active != nil && active.ID() == sessionID {
		return active, true
	}
	return r.recent.Peek(sessionID)
}

// Recent lists remembered sessions from oldest to newest.
func (r *SessionRegistry) Recent() []*Session {
	keys := r.recent.Keys()
	out := make([]*Session, 0, len(keys))
	for _, key := range keys {
		if session, ok := r.recent.Peek(key); ok {
			out = append(out, session)
		}
	}
	return out
}
