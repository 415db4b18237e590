package embedding

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// RetryConfig configures retry behaviour for embedding calls.
type RetryConfig struct {
	MaxRetries int           // 0 = single attempt
	RetryDelay time.Duration // initial delay between attempts
	MaxDelay   time.Duration // caps the exponential backoff
	Timeout    time.Duration // per attempt, 0 = none
}

// DefaultRetryConfig returns the defaults used when nil is passed.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries: 3,
		RetryDelay: 500 * time.Millisecond,
		MaxDelay:   10 * time.Second,
		Timeout:    30 * time.Second,
	}
}

// RetryEmbedder retries transient embedding failures with exponential
// backoff.
type RetryEmbedder struct {
	inner  Embedder
	config *RetryConfig
}

// NewRetryEmbedder wraps inner. A nil config uses DefaultRetryConfig.
func NewRetryEmbedder(inner Embedder, config *RetryConfig) *RetryEmbedder {
	if config == nil {
		config = DefaultRetryConfig()
	}
	return &RetryEmbedder{inner: inner, config: config}
}

func (r *RetryEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := r.do(ctx, func(ctx context.Context) error {
		var err error
		out, err = r.inner.EmbedDocuments(ctx, texts)
		return err
	})
	return out, err
}

func (r *RetryEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := r.do(ctx, func(ctx context.Context) error {
		var err error
		out, err = r.inner.EmbedQuery(ctx, text)
		return err
	})
	return out, err
}

func (r *RetryEmbedder) do(ctx context.Context, call func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.backoff(attempt)):
			}
		}

		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if r.config.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		}
		err := call(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}

		lastErr = err
		if !isRetryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("embedding: max retries (%d) exceeded: %w", r.config.MaxRetries, lastErr)
}

// backoff returns RetryDelay * 2^(attempt-1), capped at MaxDelay.
func (r *RetryEmbedder) backoff(attempt int) time.Duration {
	delay := r.config.RetryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if r.config.MaxDelay > 0 && delay > r.config.MaxDelay {
			return r.config.MaxDelay
		}
	}
	return delay
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := err.Error()
	for _, code := range []string{"429", "500", "502", "503", "504", "connection refused", "EOF"} {
		if strings.Contains(msg, code) {
			return true
		}
	}
	return false
}
