// Package server exposes the assistant over HTTP: the chat endpoint, health
// and stats, the live event feed, and cache snapshot export.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/skycast-ai/skycast/internal/agent"
	"github.com/skycast-ai/skycast/internal/cache"
	"github.com/skycast-ai/skycast/internal/config"
	"github.com/skycast-ai/skycast/internal/events"
	"github.com/skycast-ai/skycast/internal/export"
	"github.com/skycast-ai/skycast/internal/logger"
	"github.com/skycast-ai/skycast/internal/semcache"
)

// Deps are the constructed collaborators the server routes requests to.
// ResponseCache and Exporter may be nil; their endpoints degrade gracefully.
type Deps struct {
	Agent         *agent.Agent
	AnalysisCache *semcache.Cache
	ChatCache     *semcache.Cache
	ResponseCache *cache.ResponseCache
	Hub           *events.Hub
	Exporter      *export.Exporter
}

// Server is the HTTP front for the assistant
type Server struct {
	config   *config.Config
	logger   *logger.Logger
	deps     Deps
	router   *mux.Router
	server   *http.Server
	limiters *clientLimiters
}

// New creates the HTTP server and wires its routes
func New(cfg *config.Config, deps Deps, log *logger.Logger) (*Server, error) {
	if deps.Agent == nil {
		return nil, fmt.Errorf("server requires an agent")
	}
	if deps.Hub == nil {
		return nil, fmt.Errorf("server requires an event hub")
	}

	s := &Server{
		config:   cfg,
		logger:   log.WithComponent("server"),
		deps:     deps,
		router:   mux.NewRouter(),
		limiters: newClientLimiters(cfg.Limits),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/api/info", s.handleInfo).Methods("GET")
	s.router.HandleFunc("/ws", s.handleWebSocket).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)
	api.HandleFunc("/chat", s.handleChat).Methods("POST")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")
	api.HandleFunc("/admin/export", s.handleExport).Methods("POST")
	api.HandleFunc("/admin/cache/clear", s.handleCacheClear).Methods("POST")
}

// Start starts the HTTP server and the event hub
func (s *Server) Start() error {
	s.logger.Info("Starting skycast server",
		zap.Int("port", s.config.Server.Port),
		zap.String("llm_upstream", s.config.Upstream.LLM.BaseURL),
		zap.String("embedding_upstream", s.config.Upstream.Embedding.BaseURL))

	go s.deps.Hub.Run()

	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping skycast server")
	return s.server.Shutdown(ctx)
}

// Handler exposes the router for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.deps.Hub.HandleWebSocket(w, r)
}
