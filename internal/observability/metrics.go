package observability

import (
	"bufio"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MetricsRegistry holds registered metrics and renders them in the
// Prometheus text exposition format.
type MetricsRegistry struct {
	mu       sync.RWMutex
	counters map[string]*Counter
	gauges   map[string]*Gauge
	histos   map[string]*Histogram
}

// Counter is a monotonically increasing metric.
type Counter struct {
	name   string
	help   string
	labels map[string]string
	mu     sync.Mutex
	value  float64
}

// Gauge is a metric that can go up or down.
type Gauge struct {
	name   string
	help   string
	labels map[string]string
	mu     sync.Mutex
	value  float64
}

// Histogram counts observations into cumulative buckets.
type Histogram struct {
	name    string
	help    string
	labels  map[string]string
	buckets []float64
	mu      sync.Mutex
	counts  []uint64
	sum     float64
	count   uint64
}

func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		counters: make(map[string]*Counter),
		gauges:   make(map[string]*Gauge),
		histos:   make(map[string]*Histogram),
	}
}

// NewCounter registers a counter. Registering a name twice replaces the
// earlier metric.
func (r *MetricsRegistry) NewCounter(name, help string, labels map[string]string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := &Counter{name: name, help: help, labels: labels}
	r.counters[name] = c
	return c
}

func (r *MetricsRegistry) NewGauge(name, help string, labels map[string]string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	g := &Gauge{name: name, help: help, labels: labels}
	r.gauges[name] = g
	return g
}

// NewHistogram registers a histogram. nil buckets use DefaultBuckets.
func (r *MetricsRegistry) NewHistogram(name, help string, labels map[string]string, buckets []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()
	if buckets == nil {
		buckets = DefaultBuckets()
	}
	h := &Histogram{
		name:    name,
		help:    help,
		labels:  labels,
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
	r.histos[name] = h
	return h
}

// DefaultBuckets are latency buckets in seconds, sized for remote API calls.
func DefaultBuckets() []float64 {
	return []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
}

func (c *Counter) Inc() { c.Add(1) }

// Add increases the counter. Negative values are ignored.
func (c *Counter) Add(v float64) {
	if v < 0 {
		return
	}
	c.mu.Lock()
	c.value += v
	c.mu.Unlock()
}

func (c *Counter) Value() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

func (g *Gauge) Set(v float64) {
	g.mu.Lock()
	g.value = v
	g.mu.Unlock()
}

func (g *Gauge) Inc() { g.Add(1) }
func (g *Gauge) Dec() { g.Add(-1) }

func (g *Gauge) Add(v float64) {
	g.mu.Lock()
	g.value += v
	g.mu.Unlock()
}

func (g *Gauge) Value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += v
	h.count++
	for i, bound := range h.buckets {
		if v <= bound {
			h.counts[i]++
		}
	}
}

// ObserveDuration records the seconds elapsed since start.
func (h *Histogram) ObserveDuration(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Count returns the number of observations.
func (h *Histogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Handler serves the registry for Prometheus scraping.
func (r *MetricsRegistry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		r.WritePrometheus(w)
	})
}

// WritePrometheus writes every metric, sorted by name within each kind.
func (r *MetricsRegistry) WritePrometheus(out io.Writer) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w := bufio.NewWriter(out)
	for _, name := range sortedKeys(r.counters) {
		c := r.counters[name]
		c.mu.Lock()
		writeMetric(w, c.name, "counter", c.help, c.labels, c.value)
		c.mu.Unlock()
	}
	for _, name := range sortedKeys(r.gauges) {
		g := r.gauges[name]
		g.mu.Lock()
		writeMetric(w, g.name, "gauge", g.help, g.labels, g.value)
		g.mu.Unlock()
	}
	for _, name := range sortedKeys(r.histos) {
		h := r.histos[name]
		h.mu.Lock()
		writeHistogram(w, h)
		h.mu.Unlock()
	}
	return w.Flush()
}

func writeMetric(w *bufio.Writer, name, kind, help string, labels map[string]string, value float64) {
	writeHeader(w, name, kind, help)
	w.WriteString(name + formatLabels(labels) + " " + formatFloat(value) + "\n")
}

func writeHeader(w *bufio.Writer, name, kind, help string) {
	w.WriteString("# HELP " + name + " " + help + "\n")
	w.WriteString("# TYPE " + name + " " + kind + "\n")
}

func writeHistogram(w *bufio.Writer, h *Histogram) {
	writeHeader(w, h.name, "histogram", h.help)

	// counts are already cumulative; Observe bumps every bucket >= v.
	for i, bound := range h.buckets {
		labels := withLabel(h.labels, "le", formatFloat(bound))
		w.WriteString(h.name + "_bucket" + formatLabels(labels) + " " + strconv.FormatUint(h.counts[i], 10) + "\n")
	}
	labels := withLabel(h.labels, "le", "+Inf")
	w.WriteString(h.name + "_bucket" + formatLabels(labels) + " " + strconv.FormatUint(h.count, 10) + "\n")
	w.WriteString(h.name + "_sum" + formatLabels(h.labels) + " " + formatFloat(h.sum) + "\n")
	w.WriteString(h.name + "_count" + formatLabels(h.labels) + " " + strconv.FormatUint(h.count, 10) + "\n")
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	parts := make([]string, 0, len(labels))
	for _, k := range sortedKeys(labels) {
		parts = append(parts, k+"="+strconv.Quote(labels[k]))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func withLabel(labels map[string]string, key, value string) map[string]string {
	out := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		out[k] = v
	}
	out[key] = value
	return out
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// PipelineMetrics are the counters and histograms of the search pipeline.
type PipelineMetrics struct {
	Registry *MetricsRegistry

	VendorJobs       *Counter
	DuplicateJobs    *Counter
	IndexedDocuments *Counter
	SearchErrors     *Counter
	SearchDuration   *Histogram
	SearchesInFlight *Gauge
}

func NewPipelineMetrics() *PipelineMetrics {
	r := NewMetricsRegistry()
	return &PipelineMetrics{
		Registry:         r,
		VendorJobs:       r.NewCounter("jobscout_vendor_jobs_total", "Jobs returned by the job vendor", nil),
		DuplicateJobs:    r.NewCounter("jobscout_duplicate_jobs_total", "Jobs dropped as duplicates by apply link", nil),
		IndexedDocuments: r.NewCounter("jobscout_indexed_documents_total", "Documents upserted into the vector index", nil),
		SearchErrors:     r.NewCounter("jobscout_search_errors_total", "Pipeline runs that returned an error", nil),
		SearchDuration:   r.NewHistogram("jobscout_search_duration_seconds", "End-to-end pipeline duration", nil, nil),
		SearchesInFlight: r.NewGauge("jobscout_searches_in_flight", "Pipeline runs currently executing", nil),
	}
}

func (m *PipelineMetrics) Handler() http.Handler {
	return m.Registry.Handler()
}

// RecordRun records one pipeline run.
func (m *PipelineMetrics) RecordRun(duration time.Duration, fetched, unique int, err error) {
	m.SearchDuration.Observe(duration.Seconds())
	m.VendorJobs.Add(float64(fetched))
	m.DuplicateJobs.Add(float64(fetched - unique))
	if err != nil {
		m.SearchErrors.Inc()
		return
	}
	m.IndexedDocuments.Add(float64(unique))
}
