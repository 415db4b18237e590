package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func hasWarning(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jobscout.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8000" {
		t.Errorf("expected addr :8000, got %s", cfg.Server.Addr)
	}
	if cfg.Vector.Backend != "memory" || cfg.Vector.TopK != 5 {
		t.Errorf("unexpected vector defaults: %+v", cfg.Vector)
	}
	if cfg.Vendor.BaseURL != "https://jsearch.p.rapidapi.com" || cfg.Vendor.Timeout != 30*time.Second {
		t.Errorf("unexpected vendor defaults: %+v", cfg.Vendor)
	}
	if cfg.Embedding.Provider != "ollama" || cfg.Embedding.RetryDelay != time.Second {
		t.Errorf("unexpected embedding defaults: %+v", cfg.Embedding)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9000"
vector:
  backend: qdrant
  collection: postings
  dimension: 768
rerank:
  enabled: true
  base_url: http://reranker:8080
embedding:
  retry_delay: 250ms
`)
	t.Setenv("JOBSCOUT_VENDOR_API_KEY", "secret")
	t.Setenv("JOBSCOUT_VECTOR_NAMESPACE", "staging")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9000" {
		t.Errorf("file value not applied: %s", cfg.Server.Addr)
	}
	if cfg.Vector.Backend != "qdrant" || cfg.Vector.Collection != "postings" || cfg.Vector.Dimension != 768 {
		t.Errorf("unexpected vector config: %+v", cfg.Vector)
	}
	if cfg.Vector.Port != 6334 {
		t.Errorf("unset keys should keep defaults, got port %d", cfg.Vector.Port)
	}
	if cfg.Vendor.APIKey != "secret" || cfg.Vector.Namespace != "staging" {
		t.Errorf("env overrides not applied: %+v %+v", cfg.Vendor, cfg.Vector)
	}
	if cfg.Embedding.RetryDelay != 250*time.Millisecond {
		t.Errorf("expected 250ms retry delay, got %v", cfg.Embedding.RetryDelay)
	}
	if !cfg.Rerank.Enabled || cfg.Rerank.BaseURL != "http://reranker:8080" {
		t.Errorf("unexpected rerank config: %+v", cfg.Rerank)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown backend", "vector:\n  backend: pinecone\n", "unknown vector backend"},
		{"memory without embedder", "embedding:\n  provider: none\n", "embedding provider"},
		{"zero top_k", "vector:\n  top_k: 0\n", "top_k"},
		{"qdrant without namespace", "vector:\n  backend: qdrant\n  namespace: \"\"\n", "namespace"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string // empty means no warnings
	}{
		{
			name: "complete memory config",
			cfg:  Config{Vendor: VendorConfig{APIKey: "k"}, Vector: VectorConfig{Backend: "memory"}, Embedding: EmbeddingConfig{Provider: "ollama"}},
		},
		{
			name: "missing vendor key",
			cfg:  Config{Vector: VectorConfig{Backend: "memory"}},
			want: "vendor api_key",
		},
		{
			name: "openai without key",
			cfg:  Config{Vendor: VendorConfig{APIKey: "k"}, Embedding: EmbeddingConfig{Provider: "openai"}},
			want: "api_key is empty",
		},
		{
			name: "rerank on memory backend",
			cfg:  Config{Vendor: VendorConfig{APIKey: "k"}, Rerank: RerankConfig{Enabled: true}},
			want: "only applies to the qdrant backend",
		},
		{
			name: "rerank without url",
			cfg:  Config{Vendor: VendorConfig{APIKey: "k"}, Vector: VectorConfig{Backend: "qdrant"}, Rerank: RerankConfig{Enabled: true}},
			want: "base_url is empty",
		},
		{
			name: "sample rate out of range",
			cfg:  Config{Vendor: VendorConfig{APIKey: "k"}, Tracing: TracingConfig{SampleRate: 2}},
			want: "sample_rate",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			warnings := tt.cfg.Validate()
			if tt.want == "" {
				if len(warnings) != 0 {
					t.Fatalf("expected no warnings, got %v", warnings)
				}
				return
			}
			if !hasWarning(warnings, tt.want) {
				t.Fatalf("expected warning containing %q, got %v", tt.want, warnings)
			}
		})
	}
}

func TestResolveSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json")
	if err := os.WriteFile(path, []byte(`{"vendor_api_key":"rapid-key","qdrant_api_key":"q-key"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(writeConfig(t, "secrets:\n  provider: file\n  file: "+path+"\nvector:\n  api_key: explicit\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !hasWarning(cfg.Validate(), "vendor api_key") {
		t.Fatal("expected a vendor api_key warning before secrets are resolved")
	}
	m, err := cfg.SecretsManager()
	if err != nil {
		t.Fatalf("SecretsManager: %v", err)
	}
	if err := cfg.ResolveSecrets(context.Background(), m); err != nil {
		t.Fatalf("ResolveSecrets: %v", err)
	}
	if w := cfg.Validate(); hasWarning(w, "vendor api_key") {
		t.Errorf("resolved vendor key still warned: %v", w)
	}

	if cfg.Vendor.APIKey != "rapid-key" {
		t.Errorf("vendor api_key = %q, want rapid-key", cfg.Vendor.APIKey)
	}
	if cfg.Vector.APIKey != "explicit" {
		t.Errorf("vector api_key = %q, explicit values must win", cfg.Vector.APIKey)
	}
}

func TestSecretsManager_UnknownProvider(t *testing.T) {
	cfg := &Config{Secrets: SecretsConfig{Provider: "kms"}}
	if _, err := cfg.SecretsManager(); err == nil {
		t.Error("expected error for unknown secrets provider")
	}
}
