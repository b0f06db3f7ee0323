// Package api implements the Taskpilot HTTP API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/davenby/taskpilot/internal/agent"
	"github.com/davenby/taskpilot/internal/auth"
	"github.com/davenby/taskpilot/internal/buildinfo"
	"github.com/davenby/taskpilot/internal/history"
	"github.com/davenby/taskpilot/internal/llm"
	"github.com/davenby/taskpilot/internal/metrics"
	"github.com/davenby/taskpilot/internal/store"
	"github.com/davenby/taskpilot/internal/usage"
)

// Server is the HTTP API server.
type Server struct {
	address string
	port    int
	store   *store.Store
	loop    *agent.Loop
	history *history.Manager
	auth    *auth.Service
	client  llm.Client
	usage   *usage.Store
	logger  *slog.Logger
	server  *http.Server
}

// NewServer creates the API server. client is used only for the health
// probe; chat turns go through the orchestrator.
func NewServer(address string, port int, st *store.Store, loop *agent.Loop, hist *history.Manager, authSvc *auth.Service, client llm.Client, logger *slog.Logger) *Server {
	return &Server{
		address: address,
		port:    port,
		store:   st,
		loop:    loop,
		history: hist,
		auth:    authSvc,
		client:  client,
		logger:  logger.With("component", "api"),
	}
}

// SetUsageStore enables persistent token usage tracking and the
// /v1/usage endpoint.
func (s *Server) SetUsageStore(us *usage.Store) {
	s.usage = us
}

// Routes builds the router. Exposed separately from Start so tests can
// drive the full middleware chain through httptest.
func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()

	// Runs after route matching, so the metrics label is the route
	// template, not the raw path with ids in it.
	r.Use(s.withLogging)

	// Unauthenticated endpoints.
	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/v1/version", s.handleVersion).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	// Everything under /v1 except version requires a bearer token.
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(s.auth.Middleware)

	v1.HandleFunc("/chat", s.handleChat).Methods(http.MethodPost)
	v1.HandleFunc("/conversations", s.handleConversationList).Methods(http.MethodGet)
	v1.HandleFunc("/conversations/{id}", s.handleConversationGet).Methods(http.MethodGet)
	v1.HandleFunc("/usage", s.handleUsage).Methods(http.MethodGet)

	v1.HandleFunc("/tasks", s.handleTaskList).Methods(http.MethodGet)
	v1.HandleFunc("/tasks", s.handleTaskCreate).Methods(http.MethodPost)
	v1.HandleFunc("/tasks/{id}", s.handleTaskGet).Methods(http.MethodGet)
	v1.HandleFunc("/tasks/{id}", s.handleTaskUpdate).Methods(http.MethodPatch)
	v1.HandleFunc("/tasks/{id}", s.handleTaskDelete).Methods(http.MethodDelete)
	v1.HandleFunc("/tasks/{id}/complete", s.handleTaskComplete).Methods(http.MethodPost)

	return r
}

// Start begins serving HTTP requests. Blocks until the listener fails
// or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // a chat turn can span several model calls
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		metrics.HTTPRequest(r.Method, route, strconv.Itoa(rec.status))
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"name":    "Taskpilot",
		"version": buildinfo.Version,
		"status":  "ok",
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, buildinfo.Info())
}

// handleHealth reports liveness plus the provider's reachability. The
// probe bypasses breaker state on purpose; a degraded provider does not
// make the service itself unhealthy.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	provider := "ok"
	if err := s.client.Ping(ctx); err != nil {
		provider = "unreachable"
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":   "healthy",
		"provider": provider,
	})
}

// writeJSON encodes v to w. Encoding errors typically mean the client
// disconnected mid-response, which is not actionable.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write JSON response", "error", err)
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// storeError maps storage errors to responses. ErrNotFound covers both
// missing rows and rows owned by someone else, so the response cannot
// be used to probe for other owners' data.
func (s *Server) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		s.errorResponse(w, http.StatusNotFound, "not found")
		return
	}
	s.logger.Error("storage error", "error", err)
	s.errorResponse(w, http.StatusInternalServerError, "internal error")
}
