package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opensource-finance/harrier/internal/advisory"
	"github.com/opensource-finance/harrier/internal/classifier"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/observability"
	"github.com/opensource-finance/harrier/internal/profile"
	"github.com/opensource-finance/harrier/internal/replay"
	"github.com/opensource-finance/harrier/internal/screen"
	"github.com/opensource-finance/harrier/internal/validator"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, model *classifier.Model, profiles *profile.Aggregator, orchestrator *validator.Orchestrator, stage *advisory.Stage, engine *screen.Engine, replayer *replay.Replayer, metrics *observability.Metrics, version string) *Server {
	handler := NewHandler(repo, cache, bus, model, profiles, orchestrator, stage, engine, replayer, metrics, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)             // CORS for browser clients
	router.Use(RecoverMiddleware)          // Recover from panics
	router.Use(TracingMiddleware)          // OpenTelemetry tracing
	router.Use(LoggingMiddleware)          // Request logging
	router.Use(MetricsMiddleware(metrics)) // Prometheus counters
	router.Use(middleware.RealIP)          // Extract real IP
	router.Use(middleware.Compress(5))     // Gzip compression

	// Health and operational endpoints
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Scoring
	router.Post("/score", handler.Score)
	router.Post("/score/batch", handler.ScoreBatch)

	// Full verdict pipeline
	router.Post("/validate", handler.Validate)
	router.Post("/validate/batch", handler.ValidateBatch)

	// Transactions
	router.Post("/transactions", handler.IngestTransaction)
	router.Get("/transactions/{id}", handler.GetTransaction)

	// Validation retrieval
	router.Get("/validations/{id}", handler.GetValidation)

	// Profiles
	router.Get("/profiles/{id}", handler.GetProfile)
	router.Post("/profiles/{id}/analyze", handler.AnalyzeProfile)
	router.Get("/profiles/{id}/analyses", handler.GetAnalyses)
	router.Get("/profiles/{id}/transactions", handler.ListCustomerTransactions)

	// Supplemental screen rules
	router.Get("/rules", handler.ListRules)
	router.Post("/rules", handler.CreateRule)
	router.Post("/rules/reload", handler.ReloadRules)

	// Replay stream
	router.Get("/stream", handler.StreamSSE)
	router.Get("/stream/ws", handler.StreamWS)

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
