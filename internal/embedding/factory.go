// Package embedding builds the text→vector functions used by the in-memory
// index. Providers are langchaingo embedders, optionally wrapped with retry
// and an LRU cache.
package embedding

import (
	"fmt"
	"sort"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedder is the langchaingo embedder contract used across the module.
type Embedder = embeddings.Embedder

// ProviderConfig holds everything needed to build an embedder.
type ProviderConfig struct {
	Provider string // "ollama", "openai", "none"
	Model    string
	BaseURL  string
	APIKey   string

	CacheSize  int           // LRU entries, 0 disables the cache
	MaxRetries int           // 0 disables retries
	RetryDelay time.Duration // initial backoff
	Timeout    time.Duration // per attempt
}

// DefaultProviderConfig mirrors a local Ollama with mxbai-embed-large.
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Provider:   "ollama",
		Model:      "mxbai-embed-large",
		BaseURL:    KnownProviders["ollama"],
		CacheSize:  4096,
		MaxRetries: 3,
		RetryDelay: 500 * time.Millisecond,
		Timeout:    30 * time.Second,
	}
}

// ProviderConstructor builds an embedder from config.
type ProviderConstructor func(cfg ProviderConfig) (Embedder, error)

// Factory creates embedders by provider name.
type Factory struct {
	constructors map[string]ProviderConstructor
}

// NewFactory creates an empty factory.
func NewFactory() *Factory {
	return &Factory{constructors: make(map[string]ProviderConstructor)}
}

// NewDefaultFactory registers the built-in providers.
func NewDefaultFactory() *Factory {
	f := NewFactory()
	f.Register("ollama", newOllama)
	f.Register("openai", newOpenAI)
	return f
}

// Register adds a constructor under name.
func (f *Factory) Register(name string, ctor ProviderConstructor) {
	f.constructors[name] = ctor
}

// Create builds an embedder. It returns nil without error for an empty or
// "none" provider; callers that need one must check.
func (f *Factory) Create(cfg ProviderConfig) (Embedder, error) {
	if cfg.Provider == "" || cfg.Provider == "none" {
		return nil, nil
	}

	ctor, ok := f.constructors[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown embedding provider %q, registered: %v", cfg.Provider, f.Names())
	}

	e, err := ctor(cfg)
	if err != nil {
		return nil, fmt.Errorf("embedding provider %s: %w", cfg.Provider, err)
	}

	if cfg.MaxRetries > 0 || cfg.Timeout > 0 {
		e = NewRetryEmbedder(e, &RetryConfig{
			MaxRetries: cfg.MaxRetries,
			RetryDelay: cfg.RetryDelay,
			MaxDelay:   10 * time.Second,
			Timeout:    cfg.Timeout,
		})
	}
	if cfg.CacheSize > 0 {
		e, err = NewCachedEmbedder(e, cfg.CacheSize)
		if err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Names lists registered providers in sorted order.
func (f *Factory) Names() []string {
	out := make([]string, 0, len(f.constructors))
	for k := range f.constructors {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// KnownProviders maps built-in providers to their default base URL.
var KnownProviders = map[string]string{
	"ollama": "http://localhost:11434",
	"openai": "https://api.openai.com/v1",
}

func newOllama(cfg ProviderConfig) (Embedder, error) {
	opts := []ollama.Option{ollama.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
	}
	client, err := ollama.New(opts...)
	if err != nil {
		return nil, err
	}
	return embeddings.NewEmbedder(client)
}

func newOpenAI(cfg ProviderConfig) (Embedder, error) {
	token := cfg.APIKey
	if token == "" {
		// OpenAI-compatible local servers accept any token.
		token = "none"
	}
	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}
	return embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
}
