// Package search runs the job pipeline: fetch from the vendor, deduplicate,
// transform, index, then search the index with the filter-augmented query.
package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/efebarandurmaz/jobscout/internal/job"
	"github.com/efebarandurmaz/jobscout/internal/observability"
	"github.com/efebarandurmaz/jobscout/internal/vector"
)

// Vendor fetches raw job postings.
type Vendor interface {
	Name() string
	SearchJobs(ctx context.Context, query string, filters map[string]string) ([]job.RawJob, error)
}

// Service is the pipeline coordinator. It holds no per-request state and is
// safe for concurrent use when its vendor and index are.
type Service struct {
	vendor  Vendor
	index   vector.Index
	topK    int
	metrics *observability.PipelineMetrics
	logger  *slog.Logger
}

type Option func(*Service)

// WithTopK sets the number of results returned. Values <= 0 are ignored.
func WithTopK(k int) Option {
	return func(s *Service) {
		if k > 0 {
			s.topK = k
		}
	}
}

func WithMetrics(m *observability.PipelineMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(vendor Vendor, index vector.Index, opts ...Option) *Service {
	s := &Service{
		vendor: vendor,
		index:  index,
		topK:   vector.DefaultTopK,
		logger: slog.Default().With("component", "search"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SearchRelevantJobs fetches jobs for query, indexes the unique ones and
// returns the best matches for the semantic query. Vendor and index errors
// are returned as is; documents upserted before a failed search stay
// indexed.
func (s *Service) SearchRelevantJobs(ctx context.Context, query string, filters map[string]string) (results []job.Document, err error) {
	ctx, span := observability.StartPipelineSpan(ctx, query, len(filters))
	defer span.End()

	start := time.Now()
	var fetched, unique int
	if s.metrics != nil {
		s.metrics.SearchesInFlight.Inc()
		defer s.metrics.SearchesInFlight.Dec()
	}
	defer func() {
		observability.RecordCounts(span, fetched, unique, len(results))
		observability.RecordError(span, err)
		if s.metrics != nil {
			s.metrics.RecordRun(time.Since(start), fetched, unique, err)
		}
	}()

	raw, err := s.fetch(ctx, query, filters)
	if err != nil {
		return nil, err
	}
	fetched = len(raw)

	jobs := job.Deduplicate(raw)
	unique = len(jobs)
	s.logger.Debug("fetched jobs", "vendor", s.vendor.Name(), "fetched", fetched, "unique", unique)
	if unique == 0 {
		return []job.Document{}, nil
	}

	if err := s.upsert(ctx, job.Transform(jobs)); err != nil {
		return nil, err
	}

	results, err = s.search(ctx, SemanticQuery(query, filters))
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []job.Document{}
	}
	s.logger.Info("search complete", "query", query, "results", len(results), "duration", time.Since(start))
	return results, nil
}

func (s *Service) fetch(ctx context.Context, query string, filters map[string]string) ([]job.RawJob, error) {
	ctx, span := observability.StartVendorSpan(ctx, s.vendor.Name())
	defer span.End()

	raw, err := s.vendor.SearchJobs(ctx, query, filters)
	observability.RecordError(span, err)
	return raw, err
}

func (s *Service) upsert(ctx context.Context, docs []job.Document) error {
	ctx, span := observability.StartIndexSpan(ctx, observability.SpanIndexUpsert, string(s.index.Backend()))
	defer span.End()

	err := s.index.Upsert(ctx, docs)
	observability.RecordError(span, err)
	return err
}

func (s *Service) search(ctx context.Context, query string) ([]job.Document, error) {
	ctx, span := observability.StartIndexSpan(ctx, observability.SpanIndexSearch, string(s.index.Backend()))
	defer span.End()

	docs, err := s.index.Search(ctx, query, s.topK)
	observability.RecordError(span, err)
	return docs, err
}

// SemanticQuery appends " key: value" for each filter to query. Keys are
// sorted so the same filters always produce the same string.
func SemanticQuery(query string, filters map[string]string) string {
	if len(filters) == 0 {
		return query
	}
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(query)
	for _, k := range keys {
		b.WriteString(" ")
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(filters[k])
	}
	return b.String()
}
