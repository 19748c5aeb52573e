// Package api exposes the engine over HTTP as JSON.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"office-affinity/internal/common/logger"
	"office-affinity/internal/common/metrics"
	"office-affinity/internal/engine"
)

// ReadinessCheck reports whether a backing dependency is reachable.
type ReadinessCheck func(ctx context.Context) error

type Server struct {
	router  *chi.Mux
	engine  *engine.Engine
	checks  map[string]ReadinessCheck
	logger  logger.Logger
	timeout time.Duration
}

// New builds the router. checks are run by /ready, keyed by dependency name.
func New(e *engine.Engine, checks map[string]ReadinessCheck, log logger.Logger) *Server {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	s := &Server{
		router:  chi.NewRouter(),
		engine:  e,
		checks:  checks,
		logger:  logger.ForComponent(log, "api"),
		timeout: 30 * time.Second,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.health)
	r.Get("/ready", s.ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/calendar/fallback.ics", s.fallbackICS)

	r.Route("/api", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(s.timeout))

		r.Get("/groups", s.getGroups)
		r.Post("/groups/regroup", s.regroup)
		r.Post("/groups/form", s.formGroups)
		r.Get("/groups/{groupID}/presence/{date}", s.groupPresence)

		r.Post("/presence", s.declarePresence)
		r.Get("/presence/{date}", s.presenceOn)
		r.Get("/presence/{date}/{userID}", s.getPresence)
		r.Get("/week/{date}", s.weekGrid)

		r.Route("/calendar", func(r chi.Router) {
			r.Get("/status", s.syncStatus)
			r.Post("/connect", s.connectCalendar)
			r.Post("/disconnect", s.disconnectCalendar)
			r.Post("/retry", s.retryFailed)
			r.Post("/sync/{date}/{userID}", s.syncPresence)
			r.Get("/fallback", s.fallbackEvents)
		})
	})
}

// Handler returns the root handler for an http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		s.logger.Debug("HTTP request", map[string]interface{}{
			"method":     r.Method,
			"route":      route,
			"status":     status,
			"durationMs": time.Since(start).Milliseconds(),
			"requestId":  chimiddleware.GetReqID(r.Context()),
		})
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := make(map[string]string)
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if _, ok := s.engine.Groups(); !ok {
		failed["grouping"] = "no partition formed yet"
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"status": "not_ready", "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
