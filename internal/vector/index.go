// Package vector stores job documents as embeddings and serves similarity
// search over them. Two backends implement Index: MemoryIndex (exact, in
// process) and qdrant.Index (managed, approximate, optional re-ranking).
package vector

import (
	"context"
	"fmt"

	"github.com/efebarandurmaz/jobscout/internal/job"
)

// DefaultTopK is the number of results returned when callers pass 0.
const DefaultTopK = 5

// Backend selects an Index implementation.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendQdrant Backend = "qdrant"
)

// Backends lists the supported backends.
var Backends = []Backend{BackendMemory, BackendQdrant}

// ParseBackend validates a configured backend name.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(s); b {
	case BackendMemory, BackendQdrant:
		return b, nil
	case "":
		return BackendMemory, nil
	default:
		return "", fmt.Errorf("unknown vector backend %q (want %q or %q)", s, BackendMemory, BackendQdrant)
	}
}

// Index provides document storage and similarity search.
type Index interface {
	// Upsert writes or overwrites documents by job id. An empty slice is a
	// no-op.
	Upsert(ctx context.Context, docs []job.Document) error
	// Search returns up to topK documents by descending relevance.
	Search(ctx context.Context, query string, topK int) ([]job.Document, error)
	// Backend names the implementation.
	Backend() Backend
	// Close releases resources.
	Close() error
}
