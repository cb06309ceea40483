package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/memoirlabs/memoir/internal/cache"
	"github.com/memoirlabs/memoir/internal/engine"
	"github.com/memoirlabs/memoir/internal/metrics"
	"github.com/memoirlabs/memoir/internal/store"
)

// Server is the memoir HTTP API server.
type Server struct {
	db      *store.DB
	engine  *engine.Engine
	context *cache.ContextCache
	metrics *metrics.Metrics
	router  chi.Router
	version string
	started time.Time
}

// New creates a new Server. The context cache and metrics are optional;
// without a cache, context responses are built per request.
func New(db *store.DB, eng *engine.Engine, version string) *Server {
	s := &Server{
		db:      db,
		engine:  eng,
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// SetContextCache wires the memoized context source.
func (s *Server) SetContextCache(c *cache.ContextCache) {
	s.context = c
}

// SetMetrics exposes the given registry on /metrics.
func (s *Server) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
	s.routes()
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/entries", s.handleCreateEntry)
		r.Get("/users/{userID}/memories", s.handleListMemories)
		r.Get("/users/{userID}/context", s.handleGetContext)
		r.Post("/users/{userID}/consolidate", s.handleConsolidate)
		r.Post("/memories/{memoryID}/confirm", s.handleConfirmMemory)
	})

	if s.metrics != nil {
		r.Method("GET", "/metrics", s.metrics.Handler())
	}

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.db.Ping(); err != nil {
		dbOK = false
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"db_path": s.db.Path,
	})
}
