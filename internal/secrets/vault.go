package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// VaultConfig configures the HashiCorp Vault KV v2 provider.
type VaultConfig struct {
	Address    string // e.g. "http://localhost:8200"
	Token      string
	MountPath  string // default "secret"
	SecretPath string // default "jobscout"
	Timeout    time.Duration
}

// VaultProvider reads every key from one KV v2 secret. The secret is
// fetched on first use.
type VaultProvider struct {
	config VaultConfig
	client *http.Client

	once sync.Once
	data map[string]string
	err  error
}

func NewVaultProvider(config *VaultConfig) (*VaultProvider, error) {
	if config == nil || config.Address == "" {
		return nil, fmt.Errorf("vault address required")
	}
	if config.Token == "" {
		return nil, fmt.Errorf("vault token required")
	}
	cfg := *config
	if cfg.MountPath == "" {
		cfg.MountPath = "secret"
	}
	if cfg.SecretPath == "" {
		cfg.SecretPath = "jobscout"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &VaultProvider{config: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

func (p *VaultProvider) Name() string { return "vault" }

func (p *VaultProvider) Get(ctx context.Context, key Key) (string, error) {
	p.once.Do(func() { p.data, p.err = p.fetch(ctx) })
	if p.err != nil {
		return "", p.err
	}
	if v, ok := p.data[string(key)]; ok {
		return v, nil
	}
	return "", ErrNotFound
}

func (p *VaultProvider) fetch(ctx context.Context) (map[string]string, error) {
	url := fmt.Sprintf("%s/v1/%s/data/%s",
		strings.TrimSuffix(p.config.Address, "/"), p.config.MountPath, p.config.SecretPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Vault-Token", p.config.Token)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vault request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return map[string]string{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("vault %d: %s", resp.StatusCode, body)
	}

	var out struct {
		Data struct {
			Data map[string]any `json:"data"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode vault response: %w", err)
	}
	data := make(map[string]string, len(out.Data.Data))
	for k, v := range out.Data.Data {
		if s, ok := v.(string); ok {
			data[k] = s
		}
	}
	return data, nil
}
