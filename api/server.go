// Package api provides the HTTP REST API for the air quality Q&A service.
//
// Endpoints:
//
//	POST /chat                       interactive Q&A (X-Username, rate limited)
//	POST /feedback                   answer correction submission (X-Username)
//	GET  /api/chats                  list the user's sessions (X-Username)
//	POST /api/chats                  create a session (X-Username)
//	GET  /api/chats/{id}/messages    session transcript (X-Username)
//	PUT  /api/chats/{id}             rename a session (X-Username)
//	DELETE /api/chats/{id}           delete a session (X-Username)
//	POST /api/v1/public/rag/ask      public Q&A (X-API-Key, rate limited)
//	GET  /health                     liveness probe
//	GET  /ready                      readiness probe (database ping)
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: request ID, logging, recovery, CORS
//   - ratelimit.go: sliding window rate limiting for the ask endpoints
//   - auth.go: X-Username and X-API-Key authentication
//   - chat.go: chat, feedback, and public ask handlers
//   - session.go: session management endpoints
//   - health.go: health check endpoints
//   - response.go: JSON response helpers
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kmu-usr/airqa/internal/log"
)

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = "0.0.0.0:8000"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	// Long enough for an in-flight generation to finish writing.
	ShutdownTimeout = 30 * time.Second

	// ReadHeaderTimeout prevents Slowloris attacks (CWE-400).
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout must cover a full generation round including retries.
	WriteTimeout = 2 * time.Minute

	// IdleTimeout bounds keep-alive connections between requests.
	IdleTimeout = 120 * time.Second
)

// Config wires the server's handlers and middleware.
type Config struct {
	Asker    Asker
	Sessions SessionStore
	Feedback FeedbackSaver
	Pool     *pgxpool.Pool

	// Provisioners run for every authenticated identity so per-user
	// directories exist before any handler touches them.
	Provisioners []Provisioner

	// APIKeys maps X-API-Key values to public API identities.
	APIKeys map[string]string

	// CORSOrigins lists allowed origins; empty means same-origin only.
	CORSOrigins []string

	// TrustProxy enables client IP extraction from X-Forwarded-For.
	TrustProxy bool

	// RateLimit allows this many requests per RateWindow per client IP
	// on the ask endpoints. Zero disables limiting.
	RateLimit  int
	RateWindow time.Duration

	Logger log.Logger
}

// Server is the HTTP server for the REST API.
type Server struct {
	mux     *http.ServeMux
	logger  log.Logger
	cors    []string
	limiter *rateLimiter

	health  *HealthHandler
	session *SessionHandler
	chat    *ChatHandler
}

// NewServer creates an HTTP server with all routes registered.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	mux := http.NewServeMux()
	auth := newAuthenticator(cfg.APIKeys, cfg.Provisioners, logger)

	s := &Server{
		mux:     mux,
		logger:  logger,
		cors:    cfg.CORSOrigins,
		limiter: newRateLimiter(cfg.RateLimit, cfg.RateWindow, cfg.TrustProxy, logger),
		health:  NewHealthHandler(cfg.Pool, logger),
		session: NewSessionHandler(cfg.Sessions, logger),
		chat:    NewChatHandler(cfg.Asker, cfg.Feedback, logger),
	}

	s.health.RegisterRoutes(mux)
	s.session.RegisterRoutes(mux, auth)
	s.chat.RegisterRoutes(mux, auth)

	return s
}

// Handler returns the HTTP handler with middleware applied.
// Order: recovery → request ID → logging → CORS → rate limit → routes.
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		recoveryMiddleware(s.logger),
		requestIDMiddleware,
		loggingMiddleware(s.logger),
		corsMiddleware(s.cors),
		s.limiter.middleware,
	)
}

// Run starts the HTTP server and blocks until the context is canceled,
// then shuts down gracefully.
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
