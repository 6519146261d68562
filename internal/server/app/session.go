package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"sandboxagent/internal/agent/domain"
)

// SessionStatus is the lifecycle state of a session. It moves from running
// to completed or error exactly once.
type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionError     SessionStatus = "error"
)

// Session is one agent run and its append-only event log.
type Session struct {
	id        string
	prompt    string
	workdir   string
	createdAt time.Time

	launched atomic.Bool
	done     chan struct{}

	mu         sync.RWMutex
	status     SessionStatus
	events     []domain.Event
	finishedAt time.Time
	failure    string
}

// SessionSummary is a point-in-time view of a session.
type SessionSummary struct {
	ID         string        `json:"session_id"`
	Prompt     string        `json:"prompt"`
	Workdir    string        `json:"workdir"`
	Status     SessionStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	EventCount int           `json:"event_count"`
	Error      string        `json:"error,omitempty"`
}

func NewSession(id, prompt, workdir string, createdAt time.Time) *Session {
	return &Session{
		id:        id,
		prompt:    prompt,
		workdir:   workdir,
		createdAt: createdAt,
		status:    SessionRunning,
		done:      make(chan struct{}),
	}
}

func (s *Session) ID() string           { return s.id }
func (s *Session) Prompt() string       { return s.prompt }
func (s *Session) Workdir() string      { return s.workdir }
func (s *Session) CreatedAt() time.Time { return s.createdAt }

func (s *Session) Status() SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Session) Running() bool {
	return s.Status() == SessionRunning
}

// Launch runs start if and only if this is the first call for the session.
func (s *Session) Launch(start func()) bool {
	if !s.launched.CompareAndSwap(false, true) {
		return false
	}
	if start != nil {
		start()
	}
	return true
}

// Launched reports whether Launch has accepted a start.
func (s *Session) Launched() bool {
	return s.launched.Load()
}

// Append adds event to the log. Events arriving after Finish are dropped and
// Append reports false.
func (s *Session) Append(event domain.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != SessionRunning {
		return false
	}
	s.events = append(s.events, event)
	return true
}

// Finish moves the session to its terminal status. Only the first call has
// any effect.
func (s *Session) Finish(status SessionStatus, err error) bool {
	if status == SessionRunning {
		return false
	}
	s.mu.Lock()
	if s.status != SessionRunning {
		s.mu.Unlock()
		return false
	}
	s.status = status
	s.finishedAt = time.Now()
	if err != nil {
		s.failure = err.Error()
	}
	s.mu.Unlock()
	close(s.done)
	return true
}

// Done is closed once the session reaches a terminal status.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session finishes or ctx ends.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// EventsFrom returns a copy of the log from index i to the current end.
func (s *Session) EventsFrom(i int) []domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 {
		i = 0
	}
	if i >= len(s.events) {
		return nil
	}
	return append([]domain.Event(nil), s.events[i:]...)
}

// Snapshot returns a copy of the whole log.
func (s *Session) Snapshot() []domain.Event {
	return s.EventsFrom(0)
}

func (s *Session) Summary() SessionSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	summary := SessionSummary{
		ID:         s.id,
		Prompt:     s.prompt,
		Workdir:    s.workdir,
		Status:     s.status,
		CreatedAt:  s.createdAt,
		EventCount: len(s.events),
		Error:      s.failure,
	}
	if !s.finishedAt.IsZero() {
		finished := s.finishedAt
		summary.FinishedAt = &finished
	}
	return summary
}
