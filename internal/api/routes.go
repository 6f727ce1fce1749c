package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/flexinfer/mentatlab/services/workbench-go/internal/auth"
)

// Server holds the HTTP handlers and dependencies.
type Server struct {
	router   *mux.Router
	handlers *Handlers
	auth     *auth.Middleware
	limiter  *auth.PerIPRateLimiter
	tracing  bool
}

// Option configures a Server.
type Option func(*Server)

// WithAuth enforces bearer authentication on API routes.
func WithAuth(m *auth.Middleware) Option {
	return func(s *Server) { s.auth = m }
}

// WithRateLimiter applies per-client rate limiting to API routes.
func WithRateLimiter(rl *auth.PerIPRateLimiter) Option {
	return func(s *Server) { s.limiter = rl }
}

// WithTracing wraps the router in an otelhttp handler.
func WithTracing(enabled bool) Option {
	return func(s *Server) { s.tracing = enabled }
}

// NewServer creates a new API server with the given handlers.
func NewServer(h *Handlers, opts ...Option) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		handlers: h,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

// Router returns the configured router for use with http.Server.
func (s *Server) Router() http.Handler {
	if s.tracing {
		return otelhttp.NewHandler(s.router, "workbench")
	}
	return s.router
}

func (s *Server) setupRoutes() {
	h := s.handlers

	// Health endpoints
	s.router.HandleFunc("/health", h.Health).Methods("GET")
	s.router.HandleFunc("/healthz", h.Health).Methods("GET")
	s.router.HandleFunc("/ready", h.Ready).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()
	if s.limiter != nil {
		api.Use(s.limiter.Handler)
	}
	if s.auth != nil {
		api.Use(s.auth.Handler)
	}

	// Workflows; fixed paths are registered before {id}.
	api.HandleFunc("/workflows", h.ListWorkflows).Methods("GET")
	api.HandleFunc("/workflows", h.CreateWorkflow).Methods("POST")
	api.HandleFunc("/workflows/import", h.ImportWorkflow).Methods("POST")
	api.HandleFunc("/workflows/nodes/search", h.SearchNodes).Methods("GET")
	api.HandleFunc("/workflows/{id}", h.GetWorkflow).Methods("GET")
	api.HandleFunc("/workflows/{id}", h.UpdateWorkflow).Methods("PUT")
	api.HandleFunc("/workflows/{id}", h.DeleteWorkflow).Methods("DELETE")
	api.HandleFunc("/workflows/{id}/versions", h.ListVersions).Methods("GET")
	api.HandleFunc("/workflows/{id}/versions/{version}", h.GetVersion).Methods("GET")
	api.HandleFunc("/workflows/{id}/diff", h.DiffVersions).Methods("GET")
	api.HandleFunc("/workflows/{id}/output-schema", h.WorkflowOutputSchema).Methods("GET")
	api.HandleFunc("/workflows/{id}/export", h.ExportWorkflow).Methods("POST")
	api.HandleFunc("/workflows/{id}/exports", h.ListExports).Methods("GET")

	// Ad-hoc graph utilities
	api.HandleFunc("/graphs/output-schema", h.GraphOutputSchema).Methods("POST")
	api.HandleFunc("/graphs/diff", h.GraphDiff).Methods("POST")
	api.HandleFunc("/types/reduce", h.ReduceType).Methods("POST")

	// Node metadata catalog
	api.HandleFunc("/metadata", h.ListMetadata).Methods("GET")
	api.HandleFunc("/metadata", h.RegisterMetadata).Methods("POST")
	api.HandleFunc("/metadata/{type}", h.GetMetadata).Methods("GET")
	api.HandleFunc("/metadata/{type}", h.DeleteMetadata).Methods("DELETE")

	// Models
	api.HandleFunc("/models/normalize", h.NormalizeModels).Methods("POST")
	api.HandleFunc("/models/filter", h.FilterModels).Methods("POST")
	api.HandleFunc("/models/facets", h.ModelFacets).Methods("POST")

	// Presets
	api.HandleFunc("/presets", h.ListPresets).Methods("GET")
	api.HandleFunc("/presets", h.SavePreset).Methods("POST")
	api.HandleFunc("/presets/{id}", h.DeletePreset).Methods("DELETE")

	// Preflight requests for any path; CORSMiddleware answers them.
	s.router.PathPrefix("/").Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	// Apply middleware
	s.router.Use(h.CORSMiddleware)
	s.router.Use(h.LoggingMiddleware)
	s.router.Use(h.RecoveryMiddleware)
}
