// Package secrets resolves credentials (vendor, Qdrant, re-rank and
// embedding API keys) from the environment, a JSON file or Vault.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Key names a credential.
type Key string

const (
	KeyVendorAPIKey    Key = "vendor_api_key"
	KeyQdrantAPIKey    Key = "qdrant_api_key"
	KeyRerankAPIKey    Key = "rerank_api_key"
	KeyEmbeddingAPIKey Key = "embedding_api_key"
)

// ErrNotFound is returned when no provider has the key.
var ErrNotFound = errors.New("secret not found")

// Provider is a read-only secret backend.
type Provider interface {
	Get(ctx context.Context, key Key) (string, error)
	Name() string
}

// Config selects the primary backend. The environment is always consulted
// as a fallback.
type Config struct {
	Provider  string // "env" (default), "file", "vault"
	EnvPrefix string
	File      string
	Vault     *VaultConfig
}

// Manager looks a key up in the primary provider, then the environment,
// and caches hits.
type Manager struct {
	providers []Provider

	mu    sync.RWMutex
	cache map[Key]string
}

// NewManager builds a manager from cfg.
func NewManager(cfg Config) (*Manager, error) {
	env := NewEnvProvider(cfg.EnvPrefix)

	var primary Provider
	switch cfg.Provider {
	case "", "env":
		return NewManagerWith(env), nil
	case "file":
		p, err := NewFileProvider(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("file secrets: %w", err)
		}
		primary = p
	case "vault":
		p, err := NewVaultProvider(cfg.Vault)
		if err != nil {
			return nil, fmt.Errorf("vault secrets: %w", err)
		}
		primary = p
	default:
		return nil, fmt.Errorf("unknown secrets provider %q", cfg.Provider)
	}
	return NewManagerWith(primary, env), nil
}

// NewManagerWith consults providers in order.
func NewManagerWith(providers ...Provider) *Manager {
	return &Manager{providers: providers, cache: make(map[Key]string)}
}

// Get returns the first non-empty value for key.
func (m *Manager) Get(ctx context.Context, key Key) (string, error) {
	m.mu.RLock()
	v, ok := m.cache[key]
	m.mu.RUnlock()
	if ok {
		return v, nil
	}

	for _, p := range m.providers {
		v, err := p.Get(ctx, key)
		if err == nil && v != "" {
			m.mu.Lock()
			m.cache[key] = v
			m.mu.Unlock()
			return v, nil
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			return "", fmt.Errorf("%s: %w", p.Name(), err)
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, key)
}

// Fill sets *dst from key when *dst is empty. A missing secret is not an
// error; the caller's config validation decides whether it is required.
func (m *Manager) Fill(ctx context.Context, key Key, dst *string) error {
	if *dst != "" {
		return nil
	}
	v, err := m.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

// EnvProvider reads PREFIX_KEY, then KEY.
type EnvProvider struct {
	prefix string
}

func NewEnvProvider(prefix string) *EnvProvider {
	if prefix == "" {
		prefix = "JOBSCOUT_"
	}
	if !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}
	return &EnvProvider{prefix: prefix}
}

func (p *EnvProvider) Name() string { return "env" }

func (p *EnvProvider) Get(_ context.Context, key Key) (string, error) {
	name := strings.ToUpper(string(key))
	if v := os.Getenv(p.prefix + name); v != "" {
		return v, nil
	}
	if v := os.Getenv(name); v != "" {
		return v, nil
	}
	return "", ErrNotFound
}
