package vector

import (
	"context"
	"fmt"
	"sort"
)

// TextHit is one passage returned by SimilaritySearch.
type TextHit struct {
	Index int // position in the input slice
	Text  string
	Score float64
}

// SimilaritySearch embeds texts and returns the topK closest to query by
// cosine similarity. Nothing is retained between calls. Ties keep input
// order.
func SimilaritySearch(ctx context.Context, e Embedder, texts []string, query string, topK int) ([]TextHit, error) {
	if len(texts) == 0 {
		return []TextHit{}, nil
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	vectors, err := e.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding texts: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(texts))
	}
	qv, err := e.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	qn := norm(qv)

	hits := make([]TextHit, len(texts))
	for i, v := range vectors {
		hits[i] = TextHit{Index: i, Text: texts[i], Score: cosine(qv, qn, v, norm(v))}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}
