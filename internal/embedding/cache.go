package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedEmbedder memoises vectors by the SHA-256 of their text. The same
// posting is re-fetched across searches, so document vectors are cached too.
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

// NewCachedEmbedder wraps inner with an LRU of the given size.
func NewCachedEmbedder(inner Embedder, size int) (*CachedEmbedder, error) {
	c, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &CachedEmbedder{inner: inner, cache: c}, nil
}

func (c *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := "q:" + hashText(text)
	if v, ok := c.cache.Get(key); ok {
		return v, nil
	}
	v, err := c.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, v)
	return v, nil
}

// EmbedDocuments only sends cache misses to the inner embedder, preserving
// input order in the result.
func (c *CachedEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missing []string
	var missingIdx []int
	for i, t := range texts {
		keys[i] = "d:" + hashText(t)
		if v, ok := c.cache.Get(keys[i]); ok {
			out[i] = v
			continue
		}
		missing = append(missing, t)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := c.inner.EmbedDocuments(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, errCountMismatch(len(vecs), len(missing))
	}
	for j, i := range missingIdx {
		out[i] = vecs[j]
		c.cache.Add(keys[i], vecs[j])
	}
	return out, nil
}

// Len reports the number of cached vectors.
func (c *CachedEmbedder) Len() int { return c.cache.Len() }

func hashText(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func errCountMismatch(got, want int) error {
	return fmt.Errorf("embedding count mismatch: got %d, want %d", got, want)
}
