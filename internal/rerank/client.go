// Package rerank calls a cross-encoder re-ranking service speaking the
// Cohere/Jina "/rerank" protocol.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultModel = "bge-reranker-v2-m3"
	defaultTopN  = 5
)

// Result is one re-ranked candidate. Index points into the documents passed
// to Rerank; Score is in [0,1].
type Result struct {
	Index int
	Score float64
}

// Config configures a Client.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	TopN    int
	Timeout time.Duration
}

// Client re-ranks candidate texts against a query.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	topN    int
	http    *http.Client
}

// New creates a client. BaseURL is required.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("rerank: base url is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.TopN <= 0 {
		cfg.TopN = defaultTopN
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		topN:    cfg.TopN,
		http:    &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Model returns the configured re-rank model.
func (c *Client) Model() string { return c.model }

// Rerank scores documents against query and returns at most topN results
// ordered by descending score. topN <= 0 uses the configured default.
func (c *Client) Rerank(ctx context.Context, query string, documents []string, topN int) ([]Result, error) {
	if len(documents) == 0 {
		return []Result{}, nil
	}
	if topN <= 0 {
		topN = c.topN
	}
	if topN > len(documents) {
		topN = len(documents)
	}

	data, err := json.Marshal(map[string]any{
		"model":            c.model,
		"query":            query,
		"documents":        documents,
		"top_n":            topN,
		"return_documents": false,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rerank: %s: %s", resp.Status, body)
	}

	var result struct {
		Results []struct {
			Index          int     `json:"index"`
			RelevanceScore float64 `json:"relevance_score"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("rerank: decode response: %w", err)
	}

	out := make([]Result, 0, len(result.Results))
	for _, r := range result.Results {
		if r.Index < 0 || r.Index >= len(documents) {
			return nil, fmt.Errorf("rerank: result index %d out of range [0,%d)", r.Index, len(documents))
		}
		out = append(out, Result{Index: r.Index, Score: r.RelevanceScore})
	}
	return out, nil
}
