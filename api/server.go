// Package api exposes the gateway over HTTP.
//
// Endpoints:
//
//	POST /api/v1/chat      - run one conversational turn
//	GET  /api/v1/products  - raw product retrieval (vector search)
//	GET  /api/v1/outlets   - raw outlet retrieval (structured search)
//	GET  /health           - liveness probe
//	GET  /ready            - readiness probe (pings the database)
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: recovery, request id, logging, auth
//   - health.go: health check endpoints
//   - chat.go: chat endpoint
//   - catalog.go: product/outlet retrieval endpoints
//   - response.go: JSON response helpers
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kopihq/kopi/internal/auth"
	"github.com/kopihq/kopi/internal/gateway"
	"github.com/kopihq/kopi/internal/log"
	"github.com/kopihq/kopi/internal/retrieval"
)

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = "127.0.0.1:8080"

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout prevents Slowloris-style connection holding.
	ReadHeaderTimeout = 10 * time.Second

	ReadTimeout  = 30 * time.Second
	WriteTimeout = 60 * time.Second
	IdleTimeout  = 120 * time.Second
)

// Server is the HTTP server for the query gateway.
type Server struct {
	mux    *http.ServeMux
	auth   auth.Authenticator
	logger log.Logger

	health  *HealthHandler
	chat    *ChatHandler
	catalog *CatalogHandler
}

// NewServer creates an HTTP server with all routes registered.
func NewServer(orch *gateway.Orchestrator, vector, structured retrieval.Backend, pool *pgxpool.Pool, authenticator auth.Authenticator, logger log.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		mux:     mux,
		auth:    authenticator,
		logger:  logger,
		health:  NewHealthHandler(pool, logger),
		chat:    NewChatHandler(orch, logger),
		catalog: NewCatalogHandler(vector, structured, logger),
	}

	s.health.RegisterRoutes(mux)
	s.chat.RegisterRoutes(mux)
	s.catalog.RegisterRoutes(mux)

	return s
}

// Handler returns the mux wrapped in the middleware stack.
// Order: recovery → request id → logging → auth → handler.
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		recoveryMiddleware(s.logger),
		requestIDMiddleware,
		loggingMiddleware(s.logger),
		authMiddleware(s.auth, s.logger),
	)
}

// Run starts the server and blocks until the context is cancelled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
