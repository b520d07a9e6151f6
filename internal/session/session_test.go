package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	st := NewStore(cfg, nil)
	t.Cleanup(st.Close)
	return st
}

func TestAppend_EvictsOldestBeyondBound(t *testing.T) {
	st := newTestStore(t, Config{MaxTurns: 4, IdleTTL: time.Minute})
	s, _ := st.GetOrCreate("", "alice")

	s.Acquire()
	defer s.Release()
	for i := range 9 { // bound + 5
		s.Append(RoleUser, fmt.Sprintf("turn %d", i))
	}

	require.Equal(t, 4, s.Len())
	got := s.History(0)
	assert.Equal(t, "turn 5", got[0].Text)
	assert.Equal(t, "turn 8", got[3].Text)
}

func TestHistory_ReturnsLastN(t *testing.T) {
	st := newTestStore(t, Config{MaxTurns: 10, IdleTTL: time.Minute})
	s, _ := st.GetOrCreate("", "alice")

	s.Acquire()
	defer s.Release()
	s.Append(RoleUser, "hi")
	s.Append(RoleAssistant, "hello")
	s.Append(RoleUser, "bye")

	got := s.History(2)
	require.Len(t, got, 2)
	assert.Equal(t, "hello", got[0].Text)
	assert.Equal(t, "bye", got[1].Text)
}

func TestUserTexts_FiltersRole(t *testing.T) {
	st := newTestStore(t, Config{MaxTurns: 10, IdleTTL: time.Minute})
	s, _ := st.GetOrCreate("", "alice")

	s.Acquire()
	defer s.Release()
	s.Append(RoleUser, "one")
	s.Append(RoleAssistant, "reply")
	s.Append(RoleUser, "two")

	assert.Equal(t, []string{"one", "two"}, s.UserTexts(5))
	assert.Equal(t, []string{"two"}, s.UserTexts(1))
}

func TestGetOrCreate(t *testing.T) {
	st := newTestStore(t, Config{MaxTurns: 10, IdleTTL: time.Minute})

	s1, created := st.GetOrCreate("", "alice")
	assert.True(t, created)

	s2, created := st.GetOrCreate(s1.ID.String(), "alice")
	assert.False(t, created)
	assert.Same(t, s1, s2)

	// Another identity must not reach alice's history.
	s3, created := st.GetOrCreate(s1.ID.String(), "bob")
	assert.True(t, created)
	assert.NotEqual(t, s1.ID, s3.ID)

	// Unknown and malformed ids create fresh sessions.
	_, created = st.GetOrCreate("7d44fab4-0000-0000-0000-000000000000", "alice")
	assert.True(t, created)
	_, created = st.GetOrCreate("not-a-uuid", "alice")
	assert.True(t, created)
}

func TestSweep_EvictsIdleSessions(t *testing.T) {
	st := newTestStore(t, Config{MaxTurns: 10, IdleTTL: time.Minute})

	now := time.Now()
	st.now = func() time.Time { return now }

	st.GetOrCreate("", "idle")
	now = now.Add(30 * time.Second)
	fresh, _ := st.GetOrCreate("", "fresh")
	now = now.Add(45 * time.Second) // idle is now 75s old, fresh 45s

	st.sweep()

	assert.Equal(t, 1, st.Len())
	got, created := st.GetOrCreate(fresh.ID.String(), "fresh")
	assert.False(t, created)
	assert.Same(t, fresh, got)
}

func TestSweep_SkipsLockedSession(t *testing.T) {
	st := newTestStore(t, Config{MaxTurns: 10, IdleTTL: time.Minute})

	now := time.Now()
	st.now = func() time.Time { return now }

	s, _ := st.GetOrCreate("", "busy")
	now = now.Add(2 * time.Minute)

	s.Acquire()
	st.sweep()
	s.Release()

	assert.Equal(t, 1, st.Len())
}

func TestConcurrentTurns_AppendInPairs(t *testing.T) {
	st := newTestStore(t, Config{MaxTurns: 1000, IdleTTL: time.Minute})
	s, _ := st.GetOrCreate("", "alice")

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Go(func() {
			s.Acquire()
			defer s.Release()
			s.Append(RoleUser, fmt.Sprintf("q%d", i))
			s.Append(RoleAssistant, fmt.Sprintf("a%d", i))
		})
	}
	wg.Wait()

	s.Acquire()
	defer s.Release()
	turns := s.History(0)
	require.Len(t, turns, 100)
	// Turn pairs are never interleaved.
	for i := 0; i < len(turns); i += 2 {
		assert.Equal(t, RoleUser, turns[i].Role)
		assert.Equal(t, RoleAssistant, turns[i+1].Role)
		assert.Equal(t, turns[i].Text[1:], turns[i+1].Text[1:])
	}
}
