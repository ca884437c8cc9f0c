package server

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Jyllands-Posten/solrprocessors/internal/cache"
	"github.com/Jyllands-Posten/solrprocessors/internal/config"
	"github.com/Jyllands-Posten/solrprocessors/internal/document"
	"github.com/Jyllands-Posten/solrprocessors/internal/logger"
	"github.com/Jyllands-Posten/solrprocessors/internal/pipeline"
	"github.com/Jyllands-Posten/solrprocessors/internal/store"
	"github.com/Jyllands-Posten/solrprocessors/internal/websocket"
)

// Version is reported by /info
var Version = "dev"

// ResultCache is the subset of the Redis result cache used by the server
type ResultCache interface {
	Get(ctx context.Context, fingerprint string, doc document.Document) (*cache.CachedResult, bool, error)
	Set(ctx context.Context, input document.Document, result *cache.CachedResult) error
}

// DocumentStore is the subset of the document store used by the server
type DocumentStore interface {
	Insert(ctx context.Context, rec *store.ProcessedDocument) error
	BatchInsert(ctx context.Context, records []*store.ProcessedDocument) (*store.BatchInsertResult, error)
	GetLatest(ctx context.Context, docID string) (*store.ProcessedDocument, error)
}

// Option configures a Server
type Option func(*Server)

// WithCache enables result caching
func WithCache(c ResultCache) Option {
	return func(s *Server) { s.cache = c }
}

// WithStore enables persisting processed documents
func WithStore(st DocumentStore) Option {
	return func(s *Server) { s.store = st }
}

// Server serves document processing over HTTP
type Server struct {
	config   *config.Config
	logger   *logger.Logger
	pipeline atomic.Pointer[pipeline.Pipeline]
	cache    ResultCache
	store    DocumentStore
	router   *mux.Router
	server   *http.Server
	wsHub    *websocket.Hub
	limiter  *clientLimiter
	proxies  *proxyTrust
	started  time.Time

	hubCancel context.CancelFunc
}

// New creates a new server instance processing documents with p
func New(cfg *config.Config, p *pipeline.Pipeline, log *logger.Logger, opts ...Option) *Server {
	s := &Server{
		config:  cfg,
		logger:  log.WithComponent("server"),
		router:  mux.NewRouter(),
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.proxies = newProxyTrust(cfg.Server.TrustedProxies, s.logger.Logger)

	if cfg.RateLimit.Enabled {
		s.limiter = newClientLimiter(cfg.RateLimit.RequestsPerMin, cfg.RateLimit.Burst)
	}

	if cfg.WebSocket.Enabled {
		s.wsHub = websocket.NewHub(&websocket.HubConfig{
			BroadcastDocuments:   cfg.WebSocket.Events.BroadcastDocuments,
			BroadcastSystem:      cfg.WebSocket.Events.BroadcastSystem,
			BroadcastConnections: cfg.WebSocket.Events.BroadcastConnections,
			Username:             cfg.WebSocket.Username,
			Password:             cfg.WebSocket.Password,
		}, log.Logger)
	}

	s.install(p)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)

	if s.wsHub != nil {
		s.router.HandleFunc(s.config.WebSocket.Path, s.wsHub.HandleWebSocket).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)
	api.Use(s.bodyLimitMiddleware)
	api.HandleFunc("/documents", s.handleDocuments).Methods(http.MethodPost)
	api.HandleFunc("/processors/{name}/documents", s.handleProcessorDocuments).Methods(http.MethodPost)
	if s.store != nil {
		api.HandleFunc("/documents/{id}", s.handleStoredDocument).Methods(http.MethodGet)
	}
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Pipeline returns the pipeline currently serving requests
func (s *Server) Pipeline() *pipeline.Pipeline {
	return s.pipeline.Load()
}

func (s *Server) install(p *pipeline.Pipeline) {
	p.OnProcessed(s.broadcastProcessed)
	s.pipeline.Store(p)
}

// SwapPipeline atomically replaces the pipeline. Requests already running
// finish on the old one.
func (s *Server) SwapPipeline(p *pipeline.Pipeline) {
	old := s.pipeline.Load()
	s.install(p)

	s.logger.Info("Processor pipeline reloaded",
		zap.Strings("stages", p.Stages()),
		zap.Bool("fingerprint_changed", old == nil || old.Fingerprint() != p.Fingerprint()))

	s.broadcast(websocket.Event{
		Type: websocket.EventTypeConfigReloaded,
		Data: websocket.ConfigReloadedEvent{
			Success:     true,
			Stages:      p.Stages(),
			Fingerprint: p.Fingerprint(),
		},
	})
}

// ReloadFailed reports a rejected configuration. The current pipeline stays.
func (s *Server) ReloadFailed(err error) {
	s.logger.Error("Configuration reload rejected, keeping current pipeline", zap.Error(err))
	s.broadcast(websocket.Event{
		Type: websocket.EventTypeConfigReloaded,
		Data: websocket.ConfigReloadedEvent{Success: false, Error: err.Error()},
	})
}

func (s *Server) broadcast(ev websocket.Event) {
	if s.wsHub != nil {
		s.wsHub.BroadcastEvent(ev)
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	p := s.Pipeline()
	s.logger.Info("Starting solrproc server",
		zap.Int("port", s.config.Server.Port),
		zap.Strings("stages", p.Stages()),
		zap.Bool("cache", s.cache != nil),
		zap.Bool("store", s.store != nil),
		zap.Bool("rate_limit", s.limiter != nil))

	if s.wsHub != nil {
		ctx, cancel := context.WithCancel(context.Background())
		s.hubCancel = cancel
		go s.wsHub.Run(ctx)
	}

	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping solrproc server")
	if s.hubCancel != nil {
		s.hubCancel()
	}
	return s.server.Shutdown(ctx)
}
