// Package app wires the gateway's components together: database pool,
// Genkit provider, retrieval backends, rate limiter, session store, and
// the orchestrator. Setup builds everything in dependency order; Close
// releases it in reverse.
package app

import (
	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kopihq/kopi/internal/auth"
	"github.com/kopihq/kopi/internal/config"
	"github.com/kopihq/kopi/internal/gateway"
	"github.com/kopihq/kopi/internal/log"
	"github.com/kopihq/kopi/internal/ratelimit"
	"github.com/kopihq/kopi/internal/retrieval"
	"github.com/kopihq/kopi/internal/session"
)

// App holds the initialized application components.
type App struct {
	Config *config.Config
	Logger log.Logger

	DBPool   *pgxpool.Pool
	Genkit   *genkit.Genkit
	Embedder ai.Embedder

	Vector     retrieval.Backend
	Structured retrieval.Backend
	Limiter    *ratelimit.Limiter
	Sessions   *session.Store
	Auth       auth.Authenticator

	Orchestrator *gateway.Orchestrator

	dbCleanup func()
}

// Close releases all resources held by the App. Safe to call on a
// partially initialized App.
func (a *App) Close() error {
	if a.Sessions != nil {
		a.Sessions.Close()
	}
	if a.dbCleanup != nil {
		a.dbCleanup()
	}
	return nil
}
