package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/Mindburn-Labs/coffeechain/pkg/archive"
	"github.com/Mindburn-Labs/coffeechain/pkg/report"
)

// Reports is the report surface the server exposes.
type Reports interface {
	ProductReport(ctx context.Context, productID string) (*report.ProductReport, error)
	ActorReport(ctx context.Context, actorID string) (*report.ActorReport, error)
	ArchivedReport(ctx context.Context, hash string) (*archive.Envelope, error)
}

// HealthCheck pings one dependency.
type HealthCheck func(ctx context.Context) error

// Server routes HTTP requests to the report service.
type Server struct {
	reports Reports
	checks  map[string]HealthCheck
	limiter *GlobalRateLimiter
	logger  *slog.Logger
}

// NewServer creates a server. checks are run by /health, keyed by name.
func NewServer(reports Reports, checks map[string]HealthCheck) *Server {
	return &Server{
		reports: reports,
		checks:  checks,
		logger:  slog.Default().With("component", "api"),
	}
}

// WithRateLimit applies rl to the /api routes.
func (s *Server) WithRateLimit(rl *GlobalRateLimiter) *Server {
	s.limiter = rl
	return s
}

// Handler returns the routed handler with request ids and access logging.
func (s *Server) Handler() http.Handler {
	routes := http.NewServeMux()
	routes.HandleFunc("GET /api/product/{id}", s.handleProduct)
	routes.HandleFunc("GET /api/actor/{id}", s.handleActor)
	routes.HandleFunc("GET /api/report/{hash}", s.handleArchived)
	for _, path := range []string{"/api/product/{id}", "/api/actor/{id}", "/api/report/{hash}"} {
		routes.HandleFunc(path, readOnly)
	}

	var apiHandler http.Handler = routes
	if s.limiter != nil {
		apiHandler = s.limiter.Middleware(apiHandler)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		WriteErrorR(w, r, http.StatusNotFound, "Not Found", "No route for "+r.URL.Path)
	})

	return RequestID(AccessLog(s.logger)(mux))
}

func (s *Server) handleProduct(w http.ResponseWriter, r *http.Request) {
	rep, err := s.reports.ProductReport(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleActor(w http.ResponseWriter, r *http.Request) {
	rep, err := s.reports.ActorReport(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleArchived(w http.ResponseWriter, r *http.Request) {
	hash := r.PathValue("hash")
	if !archive.ValidHash(hash) {
		WriteBadRequest(w, "report hash must look like sha256:<64 hex digits>")
		return
	}
	env, err := s.reports.ArchivedReport(r.Context(), hash)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, env)
}

// readOnly answers any method the GET routes do not serve.
func readOnly(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Allow", "GET, HEAD")
	WriteMethodNotAllowed(w)
}

// HealthStatus is the /health response body.
type HealthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := HealthStatus{Status: "ok", Checks: make(map[string]string, len(s.checks))}
	code := http.StatusOK
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			s.logger.WarnContext(ctx, "health check failed", "check", name, "error", err)
			status.Checks[name] = "down"
			status.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		status.Checks[name] = "up"
	}
	writeJSON(w, code, status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
