// Package http provides the inbound HTTP adapter of the fraud scoring service.
package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/archon-research/fraud-scoring/internal/ports/inbound"
)

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	// Addr is the address to listen on (e.g., ":8000")
	Addr string

	// Logger for the server and its access log
	Logger *slog.Logger

	// ReadTimeout for HTTP requests
	ReadTimeout time.Duration

	// WriteTimeout for HTTP responses
	WriteTimeout time.Duration
}

// ServerConfigDefaults returns a config with default values.
func ServerConfigDefaults() ServerConfig {
	return ServerConfig{
		Addr:         ":8000",
		Logger:       slog.Default(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Server serves the scoring, query and health endpoints.
//
// Endpoints:
//   - POST /score              - score and persist a transaction
//   - POST /predict            - evaluate the model without persistence
//   - GET  /transactions       - list stored transactions, newest first
//   - GET  /transactions/:id   - one transaction with its predictions
//   - /health, /health/live, /health/ready
type Server struct {
	server       *http.Server
	router       *gin.Engine
	scoring      inbound.ScoringService
	query        inbound.TransactionQueryService
	checker      inbound.HealthChecker
	shuttingDown *atomic.Bool
	logger       *slog.Logger
}

// NewServer creates a new API server. shuttingDown may be nil.
func NewServer(
	config ServerConfig,
	scoring inbound.ScoringService,
	query inbound.TransactionQueryService,
	checker inbound.HealthChecker,
	shuttingDown *atomic.Bool,
) (*Server, error) {
	if scoring == nil {
		return nil, errors.New("scoring service is required")
	}
	if query == nil {
		return nil, errors.New("transaction query service is required")
	}
	if checker == nil {
		return nil, errors.New("health checker is required")
	}

	defaults := ServerConfigDefaults()
	if config.Addr == "" {
		config.Addr = defaults.Addr
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if shuttingDown == nil {
		shuttingDown = &atomic.Bool{}
	}

	s := &Server{
		scoring:      scoring,
		query:        query,
		checker:      checker,
		shuttingDown: shuttingDown,
		logger:       config.Logger.With("component", "http-server"),
	}
	s.router = s.routes()

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return s, nil
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(requestID(), accessLog(s.logger), gin.Recovery())

	r.POST("/score", s.handleScore)
	r.POST("/predict", s.handlePredict)

	tx := r.Group("/transactions")
	{
		tx.GET("", s.handleListTransactions)
		tx.GET("/:id", s.handleGetTransaction)
	}

	health := r.Group("/health")
	{
		health.GET("", s.handleHealth)
		health.GET("/live", s.handleLive)
		health.GET("/ready", s.handleReady)
	}

	return r
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Start begins listening for requests.
// This is non-blocking - it starts the server in a goroutine and reports
// a listen failure on the returned channel.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting http server", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server failed", "error", err)
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown marks the server as shutting down and drains in-flight requests.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.shuttingDown.Store(true)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}
