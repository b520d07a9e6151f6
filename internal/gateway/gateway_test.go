package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/kopihq/kopi/internal/intent"
	"github.com/kopihq/kopi/internal/ratelimit"
	"github.com/kopihq/kopi/internal/retrieval"
	"github.com/kopihq/kopi/internal/session"
	"github.com/kopihq/kopi/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubBackend struct {
	name string

	mu         sync.Mutex
	candidates []retrieval.Candidate
	err        error
	calls      int
}

func (b *stubBackend) Name() string { return b.name }

func (b *stubBackend) Search(_ context.Context, _ string, _ int) ([]retrieval.Candidate, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	return b.candidates, b.err
}

func (b *stubBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

type fakeClassifier struct {
	result intent.Result
}

func (f *fakeClassifier) Classify(context.Context, string, []string) intent.Result {
	return f.result
}

type fixture struct {
	o          *Orchestrator
	llm        *testutil.MockLLM
	classifier *fakeClassifier
	vector     *stubBackend
	structured *stubBackend
}

func newFixture(t *testing.T, mutate func(*Config, *ratelimit.Config)) *fixture {
	t.Helper()

	cfg := Config{
		ModelName:         testutil.MockModelName,
		TopKDefault:       3,
		TopKMax:           10,
		ContextBudget:     4096,
		MaxHistoryTurns:   10,
		RetrievalTimeout:  time.Second,
		GenerationTimeout: 5 * time.Second,
		CacheTTL:          time.Minute,
	}
	rlCfg := ratelimit.Config{
		Window:          time.Minute,
		MaxRequests:     100,
		AnonMaxRequests: 5,
	}
	if mutate != nil {
		mutate(&cfg, &rlCfg)
	}

	g := genkit.Init(context.Background())
	llm := testutil.NewMockLLM("here is your answer")
	llm.Register(g)

	logger := testutil.DiscardLogger()
	sessions := session.NewStore(session.Config{MaxTurns: 20, IdleTTL: time.Minute}, logger)
	t.Cleanup(sessions.Close)

	f := &fixture{
		llm:        llm,
		classifier: &fakeClassifier{result: intent.Result{Intent: intent.General, Confidence: 0.7}},
		vector:     &stubBackend{name: "vector"},
		structured: &stubBackend{name: "structured"},
	}

	o, err := New(Options{
		Genkit:     g,
		Config:     cfg,
		Limiter:    ratelimit.New(rlCfg, logger),
		Classifier: f.classifier,
		Vector:     f.vector,
		Structured: f.structured,
		Sessions:   sessions,
		Logger:     logger,
	})
	require.NoError(t, err)
	f.o = o
	return f
}

func TestChat_ProductUsesVectorOnly(t *testing.T) {
	f := newFixture(t, nil)
	f.classifier.result = intent.Result{Intent: intent.Product, Confidence: 0.9}
	f.vector.candidates = []retrieval.Candidate{
		{Source: retrieval.SourceVector, Content: "Blue tumbler, RM55", Score: 0.9},
	}
	f.llm.AddResponse("blue tumbler", "The blue tumbler costs RM55.")

	got, err := f.o.Chat(context.Background(), Request{Identity: "alice", Message: "how much is the blue tumbler?"})
	require.NoError(t, err)

	assert.Equal(t, "The blue tumbler costs RM55.", got.Text)
	assert.Equal(t, intent.Product, got.Intent)
	assert.False(t, got.Degraded)
	assert.NotEmpty(t, got.SessionID)
	assert.Equal(t, 1, f.vector.callCount())
	assert.Equal(t, 0, f.structured.callCount())
}

func TestChat_OutletUsesStructuredOnly(t *testing.T) {
	f := newFixture(t, nil)
	f.classifier.result = intent.Result{Intent: intent.Outlet, Confidence: 0.9}

	_, err := f.o.Chat(context.Background(), Request{Identity: "alice", Message: "outlets in Selangor?"})
	require.NoError(t, err)

	assert.Equal(t, 0, f.vector.callCount())
	assert.Equal(t, 1, f.structured.callCount())
}

func TestChat_GeneralSkipsRetrieval(t *testing.T) {
	f := newFixture(t, nil)

	got, err := f.o.Chat(context.Background(), Request{Identity: "alice", Message: "hello there"})
	require.NoError(t, err)

	assert.Equal(t, "here is your answer", got.Text)
	assert.Equal(t, 0, f.vector.callCount())
	assert.Equal(t, 0, f.structured.callCount())
}

func TestChat_AmbiguousFansOutToBoth(t *testing.T) {
	f := newFixture(t, nil)
	f.classifier.result = intent.Result{Intent: intent.Ambiguous, Confidence: 0.5}
	f.vector.candidates = []retrieval.Candidate{
		{Source: retrieval.SourceVector, Content: "vector hit", Score: 0.8},
	}
	f.structured.candidates = []retrieval.Candidate{
		{Source: retrieval.SourceStructured, Content: "outlet row", Score: 1.0, Provenance: "outlet:1"},
	}

	got, err := f.o.Chat(context.Background(), Request{Identity: "alice", Message: "tumblers at the Bangsar outlet?"})
	require.NoError(t, err)

	assert.Equal(t, intent.Ambiguous, got.Intent)
	assert.Equal(t, 1, f.vector.callCount())
	assert.Equal(t, 1, f.structured.callCount())
}

func TestChat_AmbiguousEmptyFallsBackToGeneral(t *testing.T) {
	f := newFixture(t, nil)
	f.classifier.result = intent.Result{Intent: intent.Ambiguous, Confidence: 0.5}

	got, err := f.o.Chat(context.Background(), Request{Identity: "alice", Message: "hmm?"})
	require.NoError(t, err)

	assert.Equal(t, intent.General, got.Intent)
	assert.False(t, got.Degraded)
}

func TestChat_BackendErrorDegrades(t *testing.T) {
	f := newFixture(t, nil)
	f.classifier.result = intent.Result{Intent: intent.Product, Confidence: 0.9}
	f.vector.err = testutil.ErrBackendDown

	got, err := f.o.Chat(context.Background(), Request{Identity: "alice", Message: "any mugs?"})
	require.NoError(t, err)

	assert.True(t, got.Degraded)
	assert.Equal(t, "here is your answer", got.Text) // still answered
}

func TestChat_EmptyMessageRejected(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.o.Chat(context.Background(), Request{Identity: "alice"})
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestChat_RateLimited(t *testing.T) {
	f := newFixture(t, func(_ *Config, rl *ratelimit.Config) {
		rl.MaxRequests = 1
	})

	_, err := f.o.Chat(context.Background(), Request{Identity: "alice", Message: "first"})
	require.NoError(t, err)

	_, err = f.o.Chat(context.Background(), Request{Identity: "alice", Message: "second"})
	require.ErrorIs(t, err, ErrRateLimited)

	var rlErr *RateLimitError
	require.ErrorAs(t, err, &rlErr)
	assert.Greater(t, rlErr.RetryAfter, time.Duration(0))
}

func TestChat_GenerationTimeoutDegradesAndRecordsTurn(t *testing.T) {
	f := newFixture(t, func(cfg *Config, _ *ratelimit.Config) {
		cfg.GenerationTimeout = 50 * time.Millisecond
	})
	f.llm.BlockUntilCancel()

	got, err := f.o.Chat(context.Background(), Request{Identity: "alice", Message: "slow question"})
	require.NoError(t, err)

	assert.True(t, got.Degraded)
	assert.Equal(t, degradedResponse, got.Text)

	// The turn is still in history: a follow-up on the same session sees it.
	f2, err := f.o.Chat(context.Background(), Request{
		Identity: "alice", Message: "slow question", SessionID: got.SessionID,
	})
	require.NoError(t, err)
	assert.Equal(t, got.SessionID, f2.SessionID)

	s, created := f.o.sessions.GetOrCreate(got.SessionID, "alice")
	require.False(t, created)
	s.Acquire()
	defer s.Release()
	turns := s.History(0)
	require.GreaterOrEqual(t, len(turns), 2)
	assert.Equal(t, session.RoleAssistant, turns[1].Role)
	assert.Equal(t, degradedResponse, turns[1].Text)
}

func TestChat_GenerationErrorDegrades(t *testing.T) {
	f := newFixture(t, nil)
	f.llm.FailWith(testutil.ErrBackendDown)

	got, err := f.o.Chat(context.Background(), Request{Identity: "alice", Message: "hello"})
	require.NoError(t, err)

	assert.True(t, got.Degraded)
	assert.Equal(t, degradedResponse, got.Text)
}

func TestChat_RepeatedQuestionServedFromCache(t *testing.T) {
	f := newFixture(t, nil)

	first, err := f.o.Chat(context.Background(), Request{Identity: "alice", Message: "hello"})
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := f.o.Chat(context.Background(), Request{Identity: "alice", Message: "hello"})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Text, second.Text)

	assert.Len(t, f.llm.Calls(), 1)
}

func TestChat_CacheIsPerIdentity(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.o.Chat(context.Background(), Request{Identity: "alice", Message: "hello"})
	require.NoError(t, err)

	got, err := f.o.Chat(context.Background(), Request{Identity: "bob", Message: "hello"})
	require.NoError(t, err)
	assert.False(t, got.Cached)
}

func TestChat_DegradedReplyNotCached(t *testing.T) {
	f := newFixture(t, nil)
	f.llm.FailWith(testutil.ErrBackendDown)

	_, err := f.o.Chat(context.Background(), Request{Identity: "alice", Message: "hello"})
	require.NoError(t, err)

	got, err := f.o.Chat(context.Background(), Request{Identity: "alice", Message: "hello"})
	require.NoError(t, err)
	assert.False(t, got.Cached)
}

func TestChat_SessionContinuity(t *testing.T) {
	f := newFixture(t, func(cfg *Config, _ *ratelimit.Config) {
		cfg.CacheTTL = 0
	})

	first, err := f.o.Chat(context.Background(), Request{Identity: "alice", Message: "hello"})
	require.NoError(t, err)

	second, err := f.o.Chat(context.Background(), Request{
		Identity: "alice", Message: "and again", SessionID: first.SessionID,
	})
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)

	s, created := f.o.sessions.GetOrCreate(first.SessionID, "alice")
	require.False(t, created)
	s.Acquire()
	defer s.Release()
	assert.Equal(t, 4, s.Len())
}

func TestChat_ConcurrentTurnsSameSessionStayOrdered(t *testing.T) {
	f := newFixture(t, func(cfg *Config, _ *ratelimit.Config) {
		cfg.CacheTTL = 0
	})

	first, err := f.o.Chat(context.Background(), Request{Identity: "alice", Message: "warmup"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 20 {
		wg.Go(func() {
			_, err := f.o.Chat(context.Background(), Request{
				Identity: "alice", Message: "another", SessionID: first.SessionID,
			})
			assert.NoError(t, err)
		})
	}
	wg.Wait()

	s, created := f.o.sessions.GetOrCreate(first.SessionID, "alice")
	require.False(t, created)
	s.Acquire()
	defer s.Release()
	turns := s.History(0)
	// Bounded at 20; user and assistant turns must still alternate.
	require.Len(t, turns, 20)
	for i, turn := range turns {
		if i%2 == 0 {
			assert.Equal(t, session.RoleUser, turn.Role, "turn %d", i)
		} else {
			assert.Equal(t, session.RoleAssistant, turn.Role, "turn %d", i)
		}
	}
}

func TestNew_ValidatesOptions(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}
