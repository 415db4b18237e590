// Package server provides health endpoints and graceful shutdown for the
// jobscout HTTP service.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// HealthStatus represents the health state of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDegraded  HealthStatus = "degraded"
)

// HealthCheck is the result of one component check.
type HealthCheck struct {
	Name    string            `json:"name"`
	Status  HealthStatus      `json:"status"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// HealthResponse is the body of every health endpoint.
type HealthResponse struct {
	Status    HealthStatus  `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Version   string        `json:"version,omitempty"`
	Checks    []HealthCheck `json:"checks,omitempty"`
}

// HealthChecker performs a health check.
type HealthChecker func(ctx context.Context) HealthCheck

// HealthServer serves liveness, readiness and component health.
type HealthServer struct {
	mu           sync.RWMutex
	checks       map[string]HealthChecker
	version      string
	checkTimeout time.Duration
	ready        bool
	live         bool
}

// HealthConfig configures the health server.
type HealthConfig struct {
	Version      string
	CheckTimeout time.Duration // per /health request, default 5s
}

// NewHealthServer creates a health server that is live but not yet ready.
func NewHealthServer(config *HealthConfig) *HealthServer {
	s := &HealthServer{
		checks:       make(map[string]HealthChecker),
		checkTimeout: 5 * time.Second,
		live:         true,
	}
	if config != nil {
		s.version = config.Version
		if config.CheckTimeout > 0 {
			s.checkTimeout = config.CheckTimeout
		}
	}
	return s
}

// RegisterCheck adds or replaces a named check.
func (s *HealthServer) RegisterCheck(name string, checker HealthChecker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = checker
}

func (s *HealthServer) SetReady(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = ready
}

func (s *HealthServer) SetLive(live bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live = live
}

// Register mounts the health endpoints, with Kubernetes aliases, on mux.
func (s *HealthServer) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("GET /live", s.handleLive)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /livez", s.handleLive)
}

// Handler returns a mux serving only the health endpoints.
func (s *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

// Check runs every registered check and aggregates the result. Any
// unhealthy check makes the whole response unhealthy; degraded checks
// downgrade a healthy response.
func (s *HealthServer) Check(ctx context.Context) HealthResponse {
	ctx, cancel := context.WithTimeout(ctx, s.checkTimeout)
	defer cancel()

	s.mu.RLock()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	checks := make(map[string]HealthChecker, len(s.checks))
	for k, v := range s.checks {
		checks[k] = v
	}
	s.mu.RUnlock()
	sort.Strings(names)

	response := HealthResponse{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now().UTC(),
		Version:   s.version,
		Checks:    make([]HealthCheck, 0, len(names)),
	}
	for _, name := range names {
		check := checks[name](ctx)
		check.Name = name
		response.Checks = append(response.Checks, check)

		switch {
		case check.Status == HealthStatusUnhealthy:
			response.Status = HealthStatusUnhealthy
		case check.Status == HealthStatusDegraded && response.Status == HealthStatusHealthy:
			response.Status = HealthStatusDegraded
		}
	}
	return response
}

func (s *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := s.Check(r.Context())
	statusCode := http.StatusOK
	if response.Status == HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, response)
}

func (s *HealthServer) handleReady(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	ready := s.ready
	s.mu.RUnlock()
	writeProbe(w, ready)
}

func (s *HealthServer) handleLive(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	live := s.live
	s.mu.RUnlock()
	writeProbe(w, live)
}

func writeProbe(w http.ResponseWriter, ok bool) {
	response := HealthResponse{Status: HealthStatusHealthy, Timestamp: time.Now().UTC()}
	if !ok {
		response.Status = HealthStatusUnhealthy
		writeJSON(w, http.StatusServiceUnavailable, response)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// IndexHealthChecker reports the vector index. A nil ping means the backend
// has nothing remote to check, as with the in-memory index.
func IndexHealthChecker(backend string, ping func(ctx context.Context) error) HealthChecker {
	return func(ctx context.Context) HealthCheck {
		details := map[string]string{"backend": backend}
		if ping == nil {
			return HealthCheck{Status: HealthStatusHealthy, Message: "in-process index", Details: details}
		}
		if err := ping(ctx); err != nil {
			return HealthCheck{
				Status:  HealthStatusUnhealthy,
				Message: "vector index unreachable: " + err.Error(),
				Details: details,
			}
		}
		return HealthCheck{Status: HealthStatusHealthy, Message: "vector index OK", Details: details}
	}
}

// VendorHealthChecker reports whether the job vendor is configured. The
// vendor is never called, so probes do not spend API quota.
func VendorHealthChecker(name string, configured bool) HealthChecker {
	return func(context.Context) HealthCheck {
		details := map[string]string{"vendor": name}
		if !configured {
			return HealthCheck{
				Status:  HealthStatusDegraded,
				Message: "vendor API key not configured",
				Details: details,
			}
		}
		return HealthCheck{Status: HealthStatusHealthy, Message: "vendor configured", Details: details}
	}
}

// EmbedderHealthChecker reports the embedding provider used by the
// in-memory index. Failures degrade rather than fail the service, since
// the remote index does not need it.
func EmbedderHealthChecker(provider string, probe func(ctx context.Context) error) HealthChecker {
	return func(ctx context.Context) HealthCheck {
		details := map[string]string{"provider": provider}
		if probe == nil {
			return HealthCheck{Status: HealthStatusHealthy, Message: "embedding provider configured", Details: details}
		}
		if err := probe(ctx); err != nil {
			return HealthCheck{
				Status:  HealthStatusDegraded,
				Message: "embedding provider degraded: " + err.Error(),
				Details: details,
			}
		}
		return HealthCheck{Status: HealthStatusHealthy, Message: "embedding provider OK", Details: details}
	}
}
