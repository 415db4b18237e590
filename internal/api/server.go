// Package api serves the job search pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/efebarandurmaz/jobscout/internal/job"
	"github.com/efebarandurmaz/jobscout/internal/jsearch"
	"github.com/efebarandurmaz/jobscout/internal/server"
	"github.com/efebarandurmaz/jobscout/internal/textproc"
)

const maxTextBody = 4 << 20

// Searcher runs one pipeline execution.
type Searcher interface {
	SearchRelevantJobs(ctx context.Context, query string, filters map[string]string) ([]job.Document, error)
}

// JobLookup fetches a single posting from the vendor.
type JobLookup interface {
	JobDetails(ctx context.Context, jobID string) (job.RawJob, error)
}

// TextProcessor splits a text and searches its chunks.
type TextProcessor interface {
	Process(ctx context.Context, req textproc.Request) (textproc.Result, error)
}

// Config holds API server configuration.
type Config struct {
	ListenAddr   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:   ":8000",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
}

// Server is the jobscout HTTP server.
type Server struct {
	config   *Config
	searcher Searcher
	lookup   JobLookup
	text     TextProcessor
	mux      *http.ServeMux
	server   *http.Server
}

// Option customises a Server.
type Option func(*Server)

// WithJobLookup enables GET /api/v1/jobs/{job_id}.
func WithJobLookup(l JobLookup) Option {
	return func(s *Server) { s.lookup = l }
}

// WithTextProcessor enables POST /text/process.
func WithTextProcessor(p TextProcessor) Option {
	return func(s *Server) { s.text = p }
}

// WithMetrics serves h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.mux.Handle("GET /metrics", h)
	}
}

// WithHealth mounts the health, readiness and liveness endpoints.
func WithHealth(h *server.HealthServer) Option {
	return func(s *Server) { h.Register(s.mux) }
}

// NewServer creates a server. A nil config uses DefaultConfig.
func NewServer(config *Config, searcher Searcher, opts ...Option) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	s := &Server{config: config, searcher: searcher, mux: http.NewServeMux()}

	mux := s.mux
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /api/v1/jobs", s.handleSearch)
	mux.HandleFunc("GET /api/v1/jobs/{job_id}", s.handleJobDetails)
	mux.HandleFunc("POST /text/process", s.handleTextProcess)
	for _, o := range opts {
		o(s)
	}

	s.server = &http.Server{
		Addr:         config.ListenAddr,
		Handler:      corsMiddleware(loggingMiddleware(mux)),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Start serves until Stop is called.
func (s *Server) Start() error {
	slog.Info("Starting API server", "addr", s.config.ListenAddr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	slog.Info("Stopping API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"message": "jobscout is running!"})
}

// handleSearch handles GET /api/v1/jobs?query=&country=
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("query"))
	country := strings.TrimSpace(q.Get("country"))
	if query == "" {
		respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	if country == "" {
		respondError(w, http.StatusBadRequest, "country is required")
		return
	}

	docs, err := s.searcher.SearchRelevantJobs(r.Context(), query, map[string]string{"country": country})
	if err != nil {
		slog.Error("job search failed", "query", query, "country", country, "error", err)
		respondError(w, statusFor(err), "job search failed: "+err.Error())
		return
	}
	if docs == nil {
		docs = []job.Document{}
	}
	respondJSON(w, http.StatusOK, docs)
}

// handleJobDetails handles GET /api/v1/jobs/{job_id}
func (s *Server) handleJobDetails(w http.ResponseWriter, r *http.Request) {
	if s.lookup == nil {
		respondError(w, http.StatusNotFound, "job lookup is not enabled")
		return
	}
	id := r.PathValue("job_id")

	raw, err := s.lookup.JobDetails(r.Context(), id)
	if errors.Is(err, jsearch.ErrJobNotFound) {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		slog.Error("job lookup failed", "job_id", id, "error", err)
		respondError(w, statusFor(err), "job lookup failed: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, job.NewDocument(raw))
}

// handleTextProcess handles POST /text/process
func (s *Server) handleTextProcess(w http.ResponseWriter, r *http.Request) {
	if s.text == nil {
		respondError(w, http.StatusNotFound, "text processing is not enabled")
		return
	}

	var req textproc.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTextBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	res, err := s.text.Process(r.Context(), req)
	if errors.Is(err, textproc.ErrInvalidRequest) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		slog.Error("text processing failed", "error", err)
		respondError(w, http.StatusInternalServerError, "error processing text: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// statusFor maps pipeline errors to HTTP statuses. Rejected filters are the
// caller's fault; anything else the vendor returns, malformed postings
// included, is an upstream failure.
func statusFor(err error) int {
	var vendorErr *jsearch.Error
	switch {
	case errors.Is(err, jsearch.ErrInvalidParams):
		return http.StatusBadRequest
	case errors.As(err, &vendorErr):
		return http.StatusBadGateway
	case errors.Is(err, job.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// corsMiddleware allows any origin.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
