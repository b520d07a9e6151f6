package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Config controls history bounds and the idle sweep.
type Config struct {
	MaxTurns int           // history bound per session
	IdleTTL  time.Duration // sessions idle longer than this are evicted
}

// Store owns all live sessions. It is safe for concurrent use; the store
// lock covers only map lookups, never a session's turn processing.
type Store struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session

	now  func() time.Time
	done chan struct{}
	wg   sync.WaitGroup
}

// NewStore creates a session store and starts its idle sweeper. Callers
// must Close the store to stop the sweeper.
func NewStore(cfg Config, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	st := &Store{
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[uuid.UUID]*Session),
		now:      time.Now,
		done:     make(chan struct{}),
	}
	st.wg.Go(st.sweepLoop)
	return st
}

// Close stops the idle sweeper and waits for it to exit.
func (st *Store) Close() {
	close(st.done)
	st.wg.Wait()
}

// GetOrCreate resolves a session for identity. An empty or unknown id
// creates a fresh session rather than erroring; a session owned by a
// different identity is treated as unknown so histories never leak
// across identities. The second result reports whether a new session
// was created.
func (st *Store) GetOrCreate(id, identity string) (*Session, bool) {
	if sid, err := uuid.Parse(id); err == nil {
		st.mu.RLock()
		s, ok := st.sessions[sid]
		st.mu.RUnlock()
		if ok && s.Identity == identity {
			return s, false
		}
	}

	s := &Session{
		ID:       uuid.New(),
		Identity: identity,
		maxTurns: st.cfg.MaxTurns,
		lastSeen: st.now(),
		now:      st.now,
	}
	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()

	st.logger.Debug("created session", "id", s.ID, "identity", identity)
	return s, true
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

func (st *Store) sweepLoop() {
	interval := st.cfg.IdleTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-st.done:
			return
		case <-ticker.C:
			st.sweep()
		}
	}
}

// sweep evicts sessions idle longer than the TTL. Sessions mid-turn hold
// their own lock, so TryLock skips them rather than blocking the sweep.
func (st *Store) sweep() {
	cutoff := st.now().Add(-st.cfg.IdleTTL)

	st.mu.Lock()
	defer st.mu.Unlock()
	for id, s := range st.sessions {
		if !s.mu.TryLock() {
			continue
		}
		idle := s.lastSeen.Before(cutoff)
		s.mu.Unlock()
		if idle {
			delete(st.sessions, id)
			st.logger.Debug("evicted idle session", "id", id)
		}
	}
}
