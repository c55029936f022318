// Package api exposes the HTTP surface: stream and error queries, system
// commands, health and metrics.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthCheck probes one dependency. A nil return means healthy.
type HealthCheck func(ctx context.Context) error

// Server provides the HTTP endpoints.
type Server struct {
	handlers *Handlers
	checks   map[string]HealthCheck
	server   *http.Server
}

// NewServer creates a server on the given port. checks maps dependency names
// to health probes; a nil map means always healthy.
func NewServer(handlers *Handlers, checks map[string]HealthCheck, port int) *Server {
	router := mux.NewRouter()
	s := &Server{
		handlers: handlers,
		checks:   checks,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	router.HandleFunc("/streams", handlers.GetStreams).Methods(http.MethodGet)
	router.HandleFunc("/stream-errors", handlers.GetStreamErrors).Methods(http.MethodGet)
	router.HandleFunc("/active-errors", handlers.GetActiveErrors).Methods(http.MethodGet)
	router.HandleFunc("/system/commands/validate-published-events", handlers.PostValidatePublishedEvents).Methods(http.MethodPost)
	router.HandleFunc("/system/commands/{commandId}", handlers.GetCommandStatus).Methods(http.MethodGet)
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return s
}

// Router returns the request handler, for tests.
func (s *Server) Router() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	details := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(r.Context()); err != nil {
			status = "unhealthy"
			details[name] = err.Error()
		} else {
			details[name] = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(map[string]any{
		"status":  status,
		"details": details,
	})
}
