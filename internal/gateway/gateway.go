// Package gateway runs the conversational pipeline: rate-check, route,
// retrieve, assemble, generate, respond. One turn moves through an
// explicit state machine and every mid-pipeline failure degrades the
// answer instead of aborting the turn.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/kopihq/kopi/internal/assemble"
	"github.com/kopihq/kopi/internal/intent"
	"github.com/kopihq/kopi/internal/ratelimit"
	"github.com/kopihq/kopi/internal/retrieval"
	"github.com/kopihq/kopi/internal/session"
)

// degradedResponse is returned when the generation backend times out or
// fails; the turn still completes and is recorded.
const degradedResponse = "I'm having trouble answering right now. Please try again in a moment."

// Classifier routes a message to an intent. *intent.Router satisfies it.
type Classifier interface {
	Classify(ctx context.Context, message string, history []string) intent.Result
}

// Config bounds the pipeline. All fields are required unless noted.
type Config struct {
	ModelName         string
	TopKDefault       int
	TopKMax           int
	ContextBudget     int // bytes of retrieved context per prompt
	MaxHistoryTurns   int
	RetrievalTimeout  time.Duration
	GenerationTimeout time.Duration
	CacheTTL          time.Duration // 0 disables the response cache

	// Proactive pacing of generation calls, shared across all turns.
	// Zero values default to 10 rps with a burst of 30.
	GenerateRPS   rate.Limit
	GenerateBurst int
}

// Options wires the orchestrator's collaborators.
type Options struct {
	Genkit     *genkit.Genkit
	Config     Config
	Limiter    *ratelimit.Limiter
	Classifier Classifier
	Vector     retrieval.Backend
	Structured retrieval.Backend
	Sessions   *session.Store
	Logger     *slog.Logger
}

// Request is one inbound chat turn.
type Request struct {
	Identity  string
	Message   string
	SessionID string // optional; unknown ids start a fresh session
}

// Reply is the outcome of a completed turn.
type Reply struct {
	SessionID string        `json:"session_id"`
	Text      string        `json:"response_text"`
	Intent    intent.Intent `json:"intent_used"`
	Degraded  bool          `json:"degraded"`
	Cached    bool          `json:"cached,omitempty"`
}

// Orchestrator sequences the pipeline for every chat turn.
// Safe for concurrent use; turns within one session are serialized.
type Orchestrator struct {
	g          *genkit.Genkit
	cfg        Config
	limiter    *ratelimit.Limiter
	classifier Classifier
	vector     retrieval.Backend
	structured retrieval.Backend
	sessions   *session.Store
	cache      *responseCache
	pacer      *rate.Limiter
	logger     *slog.Logger
}

// New builds an Orchestrator from its collaborators.
func New(opts Options) (*Orchestrator, error) {
	switch {
	case opts.Genkit == nil:
		return nil, errors.New("gateway: genkit instance is required")
	case opts.Limiter == nil:
		return nil, errors.New("gateway: rate limiter is required")
	case opts.Classifier == nil:
		return nil, errors.New("gateway: classifier is required")
	case opts.Vector == nil || opts.Structured == nil:
		return nil, errors.New("gateway: both retrieval backends are required")
	case opts.Sessions == nil:
		return nil, errors.New("gateway: session store is required")
	case opts.Config.ModelName == "":
		return nil, errors.New("gateway: model name is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rps, burst := opts.Config.GenerateRPS, opts.Config.GenerateBurst
	if rps == 0 {
		rps, burst = 10, 30
	}

	return &Orchestrator{
		g:          opts.Genkit,
		cfg:        opts.Config,
		limiter:    opts.Limiter,
		classifier: opts.Classifier,
		vector:     opts.Vector,
		structured: opts.Structured,
		sessions:   opts.Sessions,
		cache:      newResponseCache(opts.Config.CacheTTL),
		pacer:      rate.NewLimiter(rps, burst),
		logger:     logger,
	}, nil
}

// Chat runs one turn through the pipeline. It returns an error only for
// requests rejected before the pipeline proper (empty message, rate
// limit) or when the caller's context is canceled; backend trouble
// degrades the reply instead.
func (o *Orchestrator) Chat(ctx context.Context, req Request) (*Reply, error) {
	if req.Message == "" {
		return nil, ErrEmptyMessage
	}

	t := newTurn(o.logger, req.Identity)

	d := o.limiter.Check(req.Identity)
	if !d.Allowed {
		t.to(stateRejected)
		return nil, &RateLimitError{RetryAfter: d.RetryAfter}
	}
	t.to(stateRateChecked)

	s, created := o.sessions.GetOrCreate(req.SessionID, req.Identity)
	if created && req.SessionID != "" {
		o.logger.Debug("unknown session id, started fresh session",
			"requested", req.SessionID, "session", s.ID)
	}

	s.Acquire()
	defer s.Release()

	if cached, ok := o.cache.Get(req.Identity, req.Message); ok {
		s.Append(session.RoleUser, req.Message)
		s.Append(session.RoleAssistant, cached.Text)
		t.to(stateResponded)
		return &Reply{
			SessionID: s.ID.String(),
			Text:      cached.Text,
			Intent:    cached.Intent,
			Degraded:  cached.Degraded,
			Cached:    true,
		}, nil
	}

	res := o.classifier.Classify(ctx, req.Message, s.UserTexts(o.cfg.MaxHistoryTurns))
	t.to(stateRouted)
	t.log("routed", "intent", res.Intent, "confidence", res.Confidence)

	candidates, degraded := o.retrieve(ctx, res.Intent, req.Message)
	t.to(stateRetrieved)

	used := res.Intent
	if used == intent.Ambiguous && len(candidates) == 0 {
		// Neither backend had anything to say; answer as plain chat.
		used = intent.General
	}

	assembled := assemble.Assemble(candidates, o.cfg.ContextBudget)
	t.to(stateAssembled)

	history := s.History(o.cfg.MaxHistoryTurns)
	s.Append(session.RoleUser, req.Message)

	text, genErr := o.generate(ctx, req.Message, assembled, history)
	if genErr != nil {
		if ctx.Err() != nil && !errors.Is(genErr, ErrGenerationTimeout) {
			t.to(stateFailed)
			return nil, ctx.Err()
		}
		t.log("generation degraded", "error", genErr)
		text = degradedResponse
		degraded = true
	}
	t.to(stateGenerated)

	s.Append(session.RoleAssistant, text)

	reply := &Reply{
		SessionID: s.ID.String(),
		Text:      text,
		Intent:    used,
		Degraded:  degraded,
	}
	o.cache.Put(req.Identity, req.Message, cachedReply{
		Text:     text,
		Intent:   used,
		Degraded: degraded,
	})
	t.to(stateResponded)
	return reply, nil
}

// retrieve fetches candidates from the backends the intent selects.
// Ambiguous fans out to both concurrently and joins before returning.
// Backend trouble surfaces as degraded, never as an error.
func (o *Orchestrator) retrieve(ctx context.Context, in intent.Intent, message string) ([]retrieval.Candidate, bool) {
	topK := intent.ExtractTopK(message, o.cfg.TopKDefault, o.cfg.TopKMax)

	switch in {
	case intent.Product:
		resp := retrieval.Fetch(ctx, o.vector, message, topK, o.cfg.RetrievalTimeout, o.logger)
		return resp.Candidates, resp.Degraded
	case intent.Outlet:
		resp := retrieval.Fetch(ctx, o.structured, message, topK, o.cfg.RetrievalTimeout, o.logger)
		return resp.Candidates, resp.Degraded
	case intent.Ambiguous:
		var vec, str retrieval.Response
		var wg sync.WaitGroup
		wg.Go(func() {
			vec = retrieval.Fetch(ctx, o.vector, message, topK, o.cfg.RetrievalTimeout, o.logger)
		})
		wg.Go(func() {
			str = retrieval.Fetch(ctx, o.structured, message, topK, o.cfg.RetrievalTimeout, o.logger)
		})
		wg.Wait()
		return append(vec.Candidates, str.Candidates...), vec.Degraded || str.Degraded
	default:
		return nil, false
	}
}

const answerPromptWithContext = `You are a helpful assistant for a coffee retail chain. Use the following retrieved information to answer the customer's question. If the information does not cover the question, say so honestly.

Retrieved information:
%s

Customer question: %s

Provide a clear, helpful response that directly addresses the question.`

const answerPromptGeneral = `You are a helpful assistant for a coffee retail chain. Answer the customer's question conversationally.

Customer question: %s`

// generate makes the single generation call for the turn, pacing it
// through the shared limiter and bounding it with the generation timeout.
func (o *Orchestrator) generate(ctx context.Context, message string, assembled assemble.Context, history []session.Turn) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, o.cfg.GenerationTimeout)
	defer cancel()

	if err := o.pacer.Wait(genCtx); err != nil {
		return "", fmt.Errorf("%w: %w", ErrGenerationTimeout, err)
	}

	prompt := fmt.Sprintf(answerPromptGeneral, message)
	if !assembled.Empty() {
		prompt = fmt.Sprintf(answerPromptWithContext, assembled.Render(), message)
	}

	messages := make([]*ai.Message, 0, len(history)+1)
	for _, turn := range history {
		switch turn.Role {
		case session.RoleAssistant:
			messages = append(messages, ai.NewModelTextMessage(turn.Text))
		default:
			messages = append(messages, ai.NewUserTextMessage(turn.Text))
		}
	}
	messages = append(messages, ai.NewUserTextMessage(prompt))

	resp, err := genkit.Generate(genCtx, o.g,
		ai.WithModelName(o.cfg.ModelName),
		ai.WithMessages(messages...),
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || genCtx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("%w: %w", ErrGenerationTimeout, err)
		}
		return "", fmt.Errorf("generation failed: %w", err)
	}
	return intent.ExtractAnswer(resp.Text()), nil
}
