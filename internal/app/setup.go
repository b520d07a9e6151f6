package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	"github.com/kopihq/kopi/db"
	"github.com/kopihq/kopi/internal/auth"
	"github.com/kopihq/kopi/internal/config"
	"github.com/kopihq/kopi/internal/gateway"
	"github.com/kopihq/kopi/internal/intent"
	"github.com/kopihq/kopi/internal/log"
	"github.com/kopihq/kopi/internal/ratelimit"
	"github.com/kopihq/kopi/internal/retrieval"
	"github.com/kopihq/kopi/internal/session"
)

// Setup creates and initializes the application. Call Close on the
// returned App to release its resources.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	pool, dbCleanup, err := provideDBPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.dbCleanup = dbCleanup
	a.DBPool = pool

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := provideEmbedder(g, cfg)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	a.Embedder = embedder

	modelName := cfg.FullModelName()

	a.Vector = retrieval.NewVectorBackend(embedder, retrieval.NewProductIndex(pool), logger)
	a.Structured = retrieval.NewStructuredBackend(
		retrieval.NewLLMTranslator(g, modelName, logger),
		retrieval.NewOutletStore(pool),
		logger,
	)

	a.Limiter = ratelimit.New(ratelimit.Config{
		Window:          cfg.RateWindow(),
		MaxRequests:     cfg.RateMaxRequests,
		AnonMaxRequests: cfg.AnonMaxRequests,
	}, logger)

	a.Sessions = session.NewStore(session.Config{
		MaxTurns: cfg.MaxHistoryTurns,
		IdleTTL:  cfg.SessionIdleTTL(),
	}, logger)

	a.Auth = auth.NewKeyStore(cfg.APIKeys)

	orch, err := gateway.New(gateway.Options{
		Genkit: g,
		Config: gateway.Config{
			ModelName:         modelName,
			TopKDefault:       cfg.TopKDefault,
			TopKMax:           cfg.TopKMax,
			ContextBudget:     cfg.ContextBudgetBytes,
			MaxHistoryTurns:   cfg.MaxHistoryTurns,
			RetrievalTimeout:  cfg.RetrievalTimeout(),
			GenerationTimeout: cfg.GenerationTimeout(),
			CacheTTL:          cfg.CacheTTL(),
			GenerateRPS:       rate.Limit(10),
			GenerateBurst:     30,
		},
		Limiter:    a.Limiter,
		Classifier: intent.NewRouter(g, modelName, logger),
		Vector:     a.Vector,
		Structured: a.Structured,
		Sessions:   a.Sessions,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	a.Orchestrator = orch

	return a, nil
}

func provideDBPool(ctx context.Context, cfg *config.Config, logger log.Logger) (*pgxpool.Pool, func(), error) {
	if err := db.Migrate(cfg.DSN(), logger); err != nil {
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, pool.Close, nil
}

func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	var g *genkit.Genkit

	switch cfg.Provider {
	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		logger.Info("initialized Genkit with openai provider", "model", cfg.ModelName)

	default: // gemini
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized Genkit with gemini provider", "model", cfg.ModelName)
	}

	return g, nil
}

func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		// OpenAI auto-registers embedders in Init().
		return genkit.LookupEmbedder(g, api.NewName(config.ProviderOpenAI, cfg.EmbedderModel))
	default: // gemini
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}
