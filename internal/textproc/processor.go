// Package textproc splits free text into overlapping chunks and finds the
// chunks closest to a query.
package textproc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/efebarandurmaz/jobscout/internal/vector"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	MaxChunkSize        = 10000
	MaxChunkOverlap     = 1000
	maxResults          = 5
)

// ErrInvalidRequest marks a request rejected before any embedding call.
var ErrInvalidRequest = errors.New("invalid text request")

// Request is one process call. Zero ChunkSize and nil ChunkOverlap use the
// defaults.
type Request struct {
	Text         string `json:"text"`
	Query        string `json:"query"`
	ChunkSize    int    `json:"chunk_size,omitempty"`
	ChunkOverlap *int   `json:"chunk_overlap,omitempty"`
}

// Chunk is a matching passage.
type Chunk struct {
	PageContent string         `json:"page_content"`
	Metadata    map[string]any `json:"metadata"`
}

// Result is the outcome of Process.
type Result struct {
	SearchResults  []Chunk `json:"search_results"`
	ChunkCount     int     `json:"chunk_count"`
	OriginalLength int     `json:"original_length"`
}

// Processor runs split, embed and search over a throwaway corpus per call.
type Processor struct {
	embedder vector.Embedder
	logger   *slog.Logger
}

func New(e vector.Embedder) *Processor {
	return &Processor{
		embedder: e,
		logger:   slog.Default().With("component", "textproc"),
	}
}

func (r Request) sizes() (size, overlap int, err error) {
	size, overlap = r.ChunkSize, DefaultChunkOverlap
	if size == 0 {
		size = DefaultChunkSize
	}
	if r.ChunkOverlap != nil {
		overlap = *r.ChunkOverlap
	}
	switch {
	case strings.TrimSpace(r.Query) == "":
		return 0, 0, fmt.Errorf("%w: query is required", ErrInvalidRequest)
	case size < 1 || size > MaxChunkSize:
		return 0, 0, fmt.Errorf("%w: chunk_size must be between 1 and %d, got %d", ErrInvalidRequest, MaxChunkSize, size)
	case overlap < 0 || overlap > MaxChunkOverlap:
		return 0, 0, fmt.Errorf("%w: chunk_overlap must be between 0 and %d, got %d", ErrInvalidRequest, MaxChunkOverlap, overlap)
	case overlap >= size:
		return 0, 0, fmt.Errorf("%w: chunk_overlap %d must be smaller than chunk_size %d", ErrInvalidRequest, overlap, size)
	}
	return size, overlap, nil
}

// Split breaks text into chunks of at most size runes, preferring paragraph,
// line and word boundaries.
func Split(text string, size, overlap int) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return []string{}, nil
	}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(overlap),
	)
	parts, err := splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("splitting text: %w", err)
	}
	chunks := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			chunks = append(chunks, p)
		}
	}
	return chunks, nil
}

// Process splits req.Text, embeds the chunks and returns up to five chunks
// closest to req.Query.
func (p *Processor) Process(ctx context.Context, req Request) (Result, error) {
	size, overlap, err := req.sizes()
	if err != nil {
		return Result{}, err
	}

	chunks, err := Split(req.Text, size, overlap)
	if err != nil {
		return Result{}, err
	}

	hits, err := vector.SimilaritySearch(ctx, p.embedder, chunks, req.Query, min(len(chunks), maxResults))
	if err != nil {
		return Result{}, err
	}

	results := make([]Chunk, len(hits))
	for i, h := range hits {
		results[i] = Chunk{
			PageContent: h.Text,
			Metadata:    map[string]any{"chunk": h.Index, "score": h.Score},
		}
	}
	p.logger.Debug("processed text", "chunks", len(chunks), "results", len(results))
	return Result{
		SearchResults:  results,
		ChunkCount:     len(chunks),
		OriginalLength: utf8.RuneCountInString(req.Text),
	}, nil
}
