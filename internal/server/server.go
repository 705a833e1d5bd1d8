// Package server provides the HTTP API for Kanıt.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hyperjump/kanit/internal/config"
	"github.com/hyperjump/kanit/internal/metrics"
	"github.com/hyperjump/kanit/internal/models"
	"github.com/hyperjump/kanit/internal/storage"
	"github.com/hyperjump/kanit/pkg/utils"
)

// Assistant answers chat requests.
type Assistant interface {
	Chat(ctx context.Context, clientID string, req models.ChatRequest) (*models.ChatResponse, error)
	ChatStream(ctx context.Context, clientID string, req models.ChatRequest, onToken func(string) error) error
}

// KnowledgeBase receives uploaded documents.
type KnowledgeBase interface {
	Add(ctx context.Context, id, content string, metadata map[string]string) (bool, error)
	Count() int
}

// Memory is the in-memory conversation window.
type Memory interface {
	Messages(user, sessionID string) []models.Message
	Clear(user, sessionID string)
}

// Pinger checks that a backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of a Server. Chats, LLM, Gatherer and
// HTTPMetrics may be nil.
type Deps struct {
	Assistant   Assistant
	Memory      Memory
	KB          KnowledgeBase
	Chats       storage.ChatStore
	Stats       *metrics.Stats
	LLM         Pinger
	Gatherer    prometheus.Gatherer
	HTTPMetrics *metrics.HTTPMetrics
}

// Server is the HTTP server for the Kanıt API.
type Server struct {
	deps       Deps
	config     *config.ServerConfig
	logger     *zap.Logger
	validate   *validator.Validate
	model      string
	searxngURL string
	now        func() time.Time
	newID      func() string
	server     *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithHealthInfo sets the model and search instance reported by /api/health.
func WithHealthInfo(model, searxngURL string) Option {
	return func(s *Server) {
		s.model = model
		s.searxngURL = searxngURL
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithIDGenerator sets the generator for uploaded document ID suffixes.
func WithIDGenerator(fn func() string) Option {
	return func(s *Server) { s.newID = fn }
}

// NewServer creates a server with the given dependencies.
func NewServer(deps Deps, cfg *config.ServerConfig, logger *zap.Logger, opts ...Option) *Server {
	s := &Server{
		deps:     deps,
		config:   cfg,
		logger:   utils.OrNop(logger),
		validate: validator.New(),
		now:      time.Now,
		newID:    newUploadID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.corsOrigins(),
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if s.deps.HTTPMetrics != nil {
		r.Use(s.deps.HTTPMetrics.Middleware)
	}

	// Streaming responses outlive the request timeout and must not be buffered.
	r.Post("/api/chat/stream", s.handleChatStream)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.requestTimeout()))
		r.Use(middleware.Compress(5))

		r.Post("/api/chat", s.handleChat)
		r.Post("/api/upload-document", s.handleUploadDocument)
		r.Get("/api/stats", s.handleStats)
		r.Get("/api/health", s.handleHealth)
		r.Get("/api/chat/memory/{user}/{session}", s.handleGetMemory)
		r.Delete("/api/chat/memory/{user}/{session}", s.handleClearMemory)
		r.Get("/api/history/{user}/{session}", s.handleHistory)
		r.Get("/api/history/{user}/{session}/export", s.handleExportHistory)
	})

	if s.deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) corsOrigins() []string {
	if s.config != nil && len(s.config.CORSOrigins) > 0 {
		return s.config.CORSOrigins
	}
	return []string{"*"}
}

func (s *Server) requestTimeout() time.Duration {
	if s.config != nil && s.config.RequestTimeout > 0 {
		return s.config.RequestTimeout
	}
	return 180 * time.Second
}
