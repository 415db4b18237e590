package vector

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/efebarandurmaz/jobscout/internal/job"
)

// Embedder turns text into vectors. It matches langchaingo's
// embeddings.Embedder.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type memoryEntry struct {
	seq    int // first insertion order, breaks score ties
	text   string
	vector []float32
	norm   float64
	meta   job.Metadata
}

// MemoryIndex is an exact nearest-neighbour index held in process memory.
// Nothing survives a restart. Writes are serialised; searches run in
// parallel with each other.
type MemoryIndex struct {
	embedder Embedder
	logger   *slog.Logger

	mu      sync.RWMutex
	entries map[string]*memoryEntry
	nextSeq int
}

// NewMemoryIndex creates an empty index that embeds with e.
func NewMemoryIndex(e Embedder) *MemoryIndex {
	return &MemoryIndex{
		embedder: e,
		logger:   slog.Default().With("component", "memory-index"),
		entries:  make(map[string]*memoryEntry),
	}
}

func (m *MemoryIndex) Backend() Backend { return BackendMemory }

// Upsert embeds the combined text of each document and stores it with its
// full metadata, overwriting any entry with the same job id.
func (m *MemoryIndex) Upsert(ctx context.Context, docs []job.Document) error {
	if len(docs) == 0 {
		return nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.CombinedText()
	}
	vectors, err := m.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding documents: %w", err)
	}
	if len(vectors) != len(docs) {
		return fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(docs))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, d := range docs {
		e, ok := m.entries[d.JobID]
		if !ok {
			e = &memoryEntry{seq: m.nextSeq}
			m.nextSeq++
			m.entries[d.JobID] = e
		}
		e.text = texts[i]
		e.vector = vectors[i]
		e.norm = norm(vectors[i])
		e.meta = d.StoredMetadata()
	}
	m.logger.Debug("upserted documents", "count", len(docs), "total", len(m.entries))
	return nil
}

type scored struct {
	entry *memoryEntry
	score float64
}

// Search ranks every stored document by cosine similarity to the query.
// Results carry no relevance score.
func (m *MemoryIndex) Search(ctx context.Context, query string, topK int) ([]job.Document, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if m.Len() == 0 {
		return []job.Document{}, nil
	}

	qv, err := m.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	qn := norm(qv)

	m.mu.RLock()
	hits := make([]scored, 0, len(m.entries))
	for _, e := range m.entries {
		hits = append(hits, scored{entry: e, score: cosine(qv, qn, e.vector, e.norm)})
	}
	m.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].entry.seq < hits[j].entry.seq
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}

	docs := make([]job.Document, len(hits))
	for i, h := range hits {
		docs[i] = job.FromMetadata(h.entry.meta)
	}
	return docs, nil
}

// Len reports the number of stored documents.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Get returns the stored document for a job id.
func (m *MemoryIndex) Get(jobID string) (job.Document, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[jobID]
	if !ok {
		return job.Document{}, false
	}
	return job.FromMetadata(e.meta), true
}

func (m *MemoryIndex) Close() error { return nil }

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// cosine returns 0 for zero vectors or mismatched dimensions.
func cosine(a []float32, an float64, b []float32, bn float64) float64 {
	if an == 0 || bn == 0 || len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (an * bn)
}

var _ Index = (*MemoryIndex)(nil)
