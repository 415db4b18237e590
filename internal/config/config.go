package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/efebarandurmaz/jobscout/internal/secrets"
	"github.com/efebarandurmaz/jobscout/internal/vector"
)

// EnvPrefix prefixes every environment override, e.g. JOBSCOUT_VENDOR_API_KEY.
const EnvPrefix = "JOBSCOUT"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Vendor    VendorConfig    `mapstructure:"vendor"`
	Vector    VectorConfig    `mapstructure:"vector"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Rerank    RerankConfig    `mapstructure:"rerank"`
	Log       LogConfig       `mapstructure:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Secrets   SecretsConfig   `mapstructure:"secrets"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// VendorConfig configures the JSearch client.
type VendorConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Host    string        `mapstructure:"host"`
	Timeout time.Duration `mapstructure:"timeout"`

	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// VectorConfig selects and configures the index backend. Host onwards only
// applies to the qdrant backend.
type VectorConfig struct {
	Backend    string `mapstructure:"backend"`
	TopK       int    `mapstructure:"top_k"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	APIKey     string `mapstructure:"api_key"`
	UseTLS     bool   `mapstructure:"use_tls"`
	Collection string `mapstructure:"collection"`
	Namespace  string `mapstructure:"namespace"`
	Model      string `mapstructure:"model"`
	Dimension  int    `mapstructure:"dimension"`
}

// EmbeddingConfig configures the embedding function of the memory backend.
type EmbeddingConfig struct {
	Provider   string        `mapstructure:"provider"`
	Model      string        `mapstructure:"model"`
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	CacheSize  int           `mapstructure:"cache_size"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type RerankConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	TopN    int    `mapstructure:"top_n"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	Insecure     bool    `mapstructure:"insecure"`
	SampleRate   float64 `mapstructure:"sample_rate"`
	Environment  string  `mapstructure:"environment"`
}

// SecretsConfig selects where empty API keys are resolved from.
type SecretsConfig struct {
	Provider   string `mapstructure:"provider"` // env, file, vault
	File       string `mapstructure:"file"`
	VaultAddr  string `mapstructure:"vault_addr"`
	VaultToken string `mapstructure:"vault_token"`
	VaultMount string `mapstructure:"vault_mount"`
	VaultPath  string `mapstructure:"vault_path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("vendor.api_key", "")
	v.SetDefault("vendor.base_url", "https://jsearch.p.rapidapi.com")
	v.SetDefault("vendor.host", "jsearch.p.rapidapi.com")
	v.SetDefault("vendor.timeout", 30*time.Second)
	v.SetDefault("vendor.requests_per_second", 0.0)
	v.SetDefault("vendor.burst", 1)

	v.SetDefault("vector.backend", string(vector.BackendMemory))
	v.SetDefault("vector.top_k", vector.DefaultTopK)
	v.SetDefault("vector.host", "localhost")
	v.SetDefault("vector.port", 6334)
	v.SetDefault("vector.api_key", "")
	v.SetDefault("vector.use_tls", false)
	v.SetDefault("vector.collection", "jobs")
	v.SetDefault("vector.namespace", "job-search")
	v.SetDefault("vector.model", "sentence-transformers/all-minilm-l6-v2")
	v.SetDefault("vector.dimension", 384)

	v.SetDefault("embedding.provider", "ollama")
	v.SetDefault("embedding.model", "mxbai-embed-large")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.cache_size", 1000)
	v.SetDefault("embedding.max_retries", 3)
	v.SetDefault("embedding.retry_delay", time.Second)
	v.SetDefault("embedding.timeout", 60*time.Second)

	v.SetDefault("rerank.enabled", false)
	v.SetDefault("rerank.base_url", "")
	v.SetDefault("rerank.api_key", "")
	v.SetDefault("rerank.model", "bge-reranker-v2-m3")
	v.SetDefault("rerank.top_n", vector.DefaultTopK)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("tracing.otlp_endpoint", "")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.environment", "development")

	v.SetDefault("secrets.provider", "env")
	v.SetDefault("secrets.file", "")
	v.SetDefault("secrets.vault_addr", "")
	v.SetDefault("secrets.vault_token", "")
	v.SetDefault("secrets.vault_mount", "secret")
	v.SetDefault("secrets.vault_path", "jobscout")
}

// SecretsManager builds the secrets manager described by c.Secrets.
func (c *Config) SecretsManager() (*secrets.Manager, error) {
	sc := secrets.Config{
		Provider:  c.Secrets.Provider,
		EnvPrefix: EnvPrefix,
		File:      c.Secrets.File,
	}
	if c.Secrets.Provider == "vault" {
		sc.Vault = &secrets.VaultConfig{
			Address:    c.Secrets.VaultAddr,
			Token:      c.Secrets.VaultToken,
			MountPath:  c.Secrets.VaultMount,
			SecretPath: c.Secrets.VaultPath,
		}
	}
	return secrets.NewManager(sc)
}

// ResolveSecrets fills API keys left empty in the config from m.
func (c *Config) ResolveSecrets(ctx context.Context, m *secrets.Manager) error {
	fields := []struct {
		key secrets.Key
		dst *string
	}{
		{secrets.KeyVendorAPIKey, &c.Vendor.APIKey},
		{secrets.KeyQdrantAPIKey, &c.Vector.APIKey},
		{secrets.KeyRerankAPIKey, &c.Rerank.APIKey},
		{secrets.KeyEmbeddingAPIKey, &c.Embedding.APIKey},
	}
	for _, f := range fields {
		if err := m.Fill(ctx, f.key, f.dst); err != nil {
			return fmt.Errorf("resolving %s: %w", f.key, err)
		}
	}
	return nil
}

// Validate checks configuration for issues and returns warnings. Call it
// after ResolveSecrets so keys from the secrets provider are counted.
func (c *Config) Validate() []string {
	var warnings []string

	if c.Vendor.APIKey == "" {
		warnings = append(warnings, "vendor api_key is empty; job searches will fail")
	}

	backend, _ := vector.ParseBackend(c.Vector.Backend)
	switch backend {
	case vector.BackendMemory:
		if c.Rerank.Enabled {
			warnings = append(warnings, "rerank is enabled but only applies to the qdrant backend")
		}
		if p := c.Embedding.Provider; p == "openai" && c.Embedding.APIKey == "" {
			warnings = append(warnings, fmt.Sprintf("embedding provider '%s' is configured but api_key is empty", p))
		}
	case vector.BackendQdrant:
		if c.Vector.UseTLS && c.Vector.APIKey == "" {
			warnings = append(warnings, "qdrant uses TLS but api_key is empty")
		}
		if c.Rerank.Enabled && c.Rerank.BaseURL == "" {
			warnings = append(warnings, "rerank is enabled but base_url is empty; re-ranking disabled")
		}
	}

	if c.Vendor.RequestsPerSecond < 0 {
		warnings = append(warnings, "vendor requests_per_second is negative; rate limiting disabled")
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		warnings = append(warnings, fmt.Sprintf("tracing sample_rate %.2f is outside [0.0, 1.0]", c.Tracing.SampleRate))
	}
	return warnings
}

// check returns the first setting the service cannot start with.
func (c *Config) check() error {
	backend, err := vector.ParseBackend(c.Vector.Backend)
	if err != nil {
		return err
	}
	if c.Vector.TopK <= 0 {
		return fmt.Errorf("vector top_k must be positive, got %d", c.Vector.TopK)
	}
	if backend == vector.BackendMemory {
		if p := c.Embedding.Provider; p == "" || p == "none" {
			return fmt.Errorf("memory backend needs an embedding provider")
		}
	}
	if backend == vector.BackendQdrant && c.Vector.Namespace == "" {
		return fmt.Errorf("qdrant backend needs a namespace")
	}
	return nil
}

// Load reads defaults, then the optional YAML file at path, then
// JOBSCOUT_* environment overrides. Only fatal settings are rejected here;
// see Validate for warnings.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.check(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
