package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Maxopoly/ExilePearl/internal/engine"
	"github.com/Maxopoly/ExilePearl/internal/metrics"
	"github.com/Maxopoly/ExilePearl/internal/store"
)

// Server is the exilepearl HTTP API server.
type Server struct {
	db      *store.DB
	engine  *engine.Engine
	metrics *metrics.Metrics
	log     zerolog.Logger
	router  chi.Router
	version string
	started time.Time
}

// New creates a new Server. m may be nil, in which case /metrics is not served.
func New(db *store.DB, eng *engine.Engine, m *metrics.Metrics, log zerolog.Logger, version string) *Server {
	s := &Server{
		db:      db,
		engine:  eng,
		metrics: m,
		log:     log.With().Str("component", "http").Logger(),
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/pearls", s.handleListPearls)
		r.Post("/pearls", s.handleExile)
		r.Get("/pearls/{player}", s.handleGetPearl)
		r.Delete("/pearls/{player}", s.handleFree)

		r.Post("/decay", s.handleDecay)
		r.Post("/reload", s.handleReload)

		r.Put("/players/{id}", s.handleUpsertPlayer)
		r.Get("/players/{id}/history", s.handleHistory)
	})

	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.db.PingContext(r.Context()); err != nil {
		dbOK = false
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"db_path": s.db.Path,
		"pearls":  len(s.engine.Pearls()),
	})
}

// requestLogger logs one line per request, at warn for 4xx and error for 5xx.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		event := s.log.Debug()
		if status >= 500 {
			event = s.log.Error()
		} else if status >= 400 {
			event = s.log.Warn()
		}

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		event.
			Str("method", r.Method).
			Str("path", path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("client_ip", r.RemoteAddr).
			Int("bytes", ww.BytesWritten()).
			Msg("http_request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
