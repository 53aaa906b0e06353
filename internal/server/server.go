// Package server exposes the task API over HTTP.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/nhle/taskminder/internal/auth"
	"github.com/nhle/taskminder/internal/reminder"
	"github.com/nhle/taskminder/internal/tasks"
)

// SweepStatus reports the reminder sweeper state for the health endpoint.
type SweepStatus interface {
	Status() reminder.Status
}

// Server holds the HTTP handlers' dependencies.
type Server struct {
	tasks          *tasks.Service
	auth           *auth.Service
	sweeper        SweepStatus
	log            *logrus.Logger
	allowedOrigins []string
}

// Options configures New.
type Options struct {
	Tasks          *tasks.Service
	Auth           *auth.Service
	Sweeper        SweepStatus
	Logger         *logrus.Logger
	AllowedOrigins []string
}

// New creates a Server.
func New(opts Options) *Server {
	return &Server{
		tasks:          opts.Tasks,
		auth:           opts.Auth,
		sweeper:        opts.Sweeper,
		log:            opts.Logger,
		allowedOrigins: opts.AllowedOrigins,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)
	r.Use(corsMiddleware(s.allowedOrigins))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/signup", s.handleSignup)
		r.Post("/login", s.handleLogin)
		r.Post("/google-login", s.handleGoogleLogin)
	})

	r.Route("/api/tasks", func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/get", s.handleListTasks)
		r.Post("/create", s.handleCreateTask)
		r.Put("/update/{id}", s.handleUpdateTask)
		r.Patch("/toggle/{id}", s.handleToggleTask)
		r.Delete("/del/{id}", s.handleDeleteTask)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusNotFound, "Route does not exist")
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"status": "ok"}
	if s.sweeper != nil {
		st := s.sweeper.Status()
		rem := map[string]any{
			"state":     st.State.String(),
			"scheduled": st.Scheduled,
		}
		if !st.LastRun.IsZero() {
			rem["lastRun"] = st.LastRun
			rem["lastSent"] = st.LastResult.Sent
			rem["lastFailed"] = st.LastResult.Failed
		}
		if st.Error != nil {
			rem["error"] = st.Error.Error()
		}
		body["reminder"] = rem
	}
	writeJSON(w, http.StatusOK, body)
}
