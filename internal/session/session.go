// Package session holds short-term dialogue state for the gateway.
//
// Sessions live in process memory, keyed by a generated UUID and owned by
// one identity. History is bounded: when a session exceeds its configured
// maximum turn count the oldest turns are evicted. Idle sessions are
// swept after a TTL.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Roles recorded on a Turn.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrNotOwned indicates the session exists but belongs to another identity.
var ErrNotOwned = errors.New("session owned by another identity")

// Turn is one immutable message in a session's history.
type Turn struct {
	Role      string
	Text      string
	Timestamp time.Time
}

// Session is one conversation's bounded history. All access goes through
// its methods; the embedded mutex also serializes whole turns, so the
// orchestrator locks the session for the duration of a pipeline run via
// Acquire/Release.
type Session struct {
	ID       uuid.UUID
	Identity string

	mu       sync.Mutex
	turns    []Turn
	maxTurns int
	lastSeen time.Time
	now      func() time.Time
}

// Acquire takes the session's exclusive turn lock. Concurrent turns for
// the same session are applied in acquisition order.
func (s *Session) Acquire() { s.mu.Lock() }

// Release drops the turn lock taken by Acquire.
func (s *Session) Release() { s.mu.Unlock() }

// Append records a turn, evicting the oldest when the bound is exceeded.
// Callers must hold the turn lock.
func (s *Session) Append(role, text string) {
	s.turns = append(s.turns, Turn{Role: role, Text: text, Timestamp: s.now()})
	if len(s.turns) > s.maxTurns {
		s.turns = append(s.turns[:0], s.turns[len(s.turns)-s.maxTurns:]...)
	}
	s.lastSeen = s.now()
}

// History returns a copy of up to the last n turns in insertion order.
// Callers must hold the turn lock. n <= 0 returns everything.
func (s *Session) History(n int) []Turn {
	turns := s.turns
	if n > 0 && len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	cp := make([]Turn, len(turns))
	copy(cp, turns)
	return cp
}

// Len returns the current turn count. Callers must hold the turn lock.
func (s *Session) Len() int { return len(s.turns) }

// UserTexts returns the text of up to the last n user turns, oldest
// first. Callers must hold the turn lock.
func (s *Session) UserTexts(n int) []string {
	var out []string
	for _, t := range s.turns {
		if t.Role == RoleUser {
			out = append(out, t.Text)
		}
	}
	if n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}
