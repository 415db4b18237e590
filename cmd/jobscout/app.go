package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/efebarandurmaz/jobscout/internal/config"
	"github.com/efebarandurmaz/jobscout/internal/embedding"
	"github.com/efebarandurmaz/jobscout/internal/jsearch"
	"github.com/efebarandurmaz/jobscout/internal/observability"
	"github.com/efebarandurmaz/jobscout/internal/rerank"
	"github.com/efebarandurmaz/jobscout/internal/search"
	"github.com/efebarandurmaz/jobscout/internal/server"
	"github.com/efebarandurmaz/jobscout/internal/textproc"
	"github.com/efebarandurmaz/jobscout/internal/vector"
	"github.com/efebarandurmaz/jobscout/internal/vector/qdrant"
)

// app holds every long-lived dependency, built once at startup.
type app struct {
	cfg     *config.Config
	vendor  *jsearch.Client
	index   vector.Index
	ping    func(ctx context.Context) error // nil for the in-memory index
	service *search.Service
	text    *textproc.Processor // nil without an embedding provider
	metrics *observability.PipelineMetrics
	tracing *observability.TracerProvider
}

// loadApp reads configuration, installs logging and tracing, and wires the
// pipeline for the configured backend.
func loadApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := observability.SetupLogging(cfg.Log.Level, cfg.Log.Format); err != nil {
		return nil, err
	}

	sm, err := cfg.SecretsManager()
	if err != nil {
		return nil, err
	}
	if err := cfg.ResolveSecrets(ctx, sm); err != nil {
		return nil, err
	}
	for _, warning := range cfg.Validate() {
		slog.Warn("config", "warning", warning)
	}

	tcfg := observability.DefaultTracingConfig()
	tcfg.OTLPEndpoint = cfg.Tracing.OTLPEndpoint
	tcfg.Insecure = cfg.Tracing.Insecure
	tcfg.SampleRate = cfg.Tracing.SampleRate
	tcfg.Environment = cfg.Tracing.Environment
	tp, err := observability.InitTracing(ctx, tcfg)
	if err != nil {
		return nil, err
	}

	vendor, err := jsearch.New(jsearch.Config{
		APIKey:            cfg.Vendor.APIKey,
		BaseURL:           cfg.Vendor.BaseURL,
		Host:              cfg.Vendor.Host,
		Timeout:           cfg.Vendor.Timeout,
		RequestsPerSecond: cfg.Vendor.RequestsPerSecond,
		Burst:             cfg.Vendor.Burst,
	})
	if err != nil {
		tp.Shutdown(ctx)
		return nil, err
	}

	a := &app{cfg: cfg, vendor: vendor, tracing: tp, metrics: observability.NewPipelineMetrics()}
	embedder, err := a.buildEmbedder()
	if err != nil {
		tp.Shutdown(ctx)
		return nil, err
	}
	if err := a.buildIndex(ctx, embedder); err != nil {
		tp.Shutdown(ctx)
		return nil, err
	}
	if embedder != nil {
		a.text = textproc.New(embedder)
	}

	a.service = search.NewService(vendor, a.index,
		search.WithTopK(cfg.Vector.TopK),
		search.WithMetrics(a.metrics),
	)
	return a, nil
}

// buildEmbedder returns the configured local embedder, or nil for the
// "none" provider.
func (a *app) buildEmbedder() (embedding.Embedder, error) {
	pc := embedding.DefaultProviderConfig()
	pc.Provider = a.cfg.Embedding.Provider
	pc.Model = a.cfg.Embedding.Model
	pc.APIKey = a.cfg.Embedding.APIKey
	pc.CacheSize = a.cfg.Embedding.CacheSize
	pc.MaxRetries = a.cfg.Embedding.MaxRetries
	pc.RetryDelay = a.cfg.Embedding.RetryDelay
	pc.Timeout = a.cfg.Embedding.Timeout
	pc.BaseURL = a.cfg.Embedding.BaseURL
	if pc.BaseURL == "" {
		pc.BaseURL = embedding.KnownProviders[pc.Provider]
	}
	return embedding.NewDefaultFactory().Create(pc)
}

func (a *app) buildIndex(ctx context.Context, embedder embedding.Embedder) error {
	backend, err := vector.ParseBackend(a.cfg.Vector.Backend)
	if err != nil {
		return err
	}

	switch backend {
	case vector.BackendQdrant:
		var opts []qdrant.Option
		if a.cfg.Rerank.Enabled && a.cfg.Rerank.BaseURL != "" {
			rr, err := rerank.New(rerank.Config{
				BaseURL: a.cfg.Rerank.BaseURL,
				APIKey:  a.cfg.Rerank.APIKey,
				Model:   a.cfg.Rerank.Model,
				TopN:    a.cfg.Rerank.TopN,
			})
			if err != nil {
				return err
			}
			opts = append(opts, qdrant.WithReranker(rr))
			slog.Info("re-ranking enabled", "model", rr.Model())
		}

		idx, err := qdrant.New(ctx, qdrant.Config{
			Host:       a.cfg.Vector.Host,
			Port:       a.cfg.Vector.Port,
			APIKey:     a.cfg.Vector.APIKey,
			UseTLS:     a.cfg.Vector.UseTLS,
			Collection: a.cfg.Vector.Collection,
			Namespace:  a.cfg.Vector.Namespace,
			Model:      a.cfg.Vector.Model,
			Dimension:  a.cfg.Vector.Dimension,
		}, opts...)
		if err != nil {
			return err
		}
		if err := idx.EnsureCollection(ctx); err != nil {
			idx.Close()
			return fmt.Errorf("qdrant collection %s: %w", a.cfg.Vector.Collection, err)
		}
		a.index = idx
		a.ping = idx.Ping

	default:
		if embedder == nil {
			return fmt.Errorf("memory backend needs an embedding provider")
		}
		a.index = vector.NewMemoryIndex(embedder)
	}

	slog.Info("vector index ready", "backend", backend)
	return nil
}

func (a *app) healthServer() *server.HealthServer {
	hs := server.NewHealthServer(&server.HealthConfig{Version: version})
	hs.RegisterCheck("vector_index", server.IndexHealthChecker(string(a.index.Backend()), a.ping))
	hs.RegisterCheck("vendor", server.VendorHealthChecker(a.vendor.Name(), a.cfg.Vendor.APIKey != ""))
	if a.text != nil {
		hs.RegisterCheck("embedding", server.EmbedderHealthChecker(a.cfg.Embedding.Provider, nil))
	}
	return hs
}

func (a *app) close(ctx context.Context) {
	if err := a.index.Close(); err != nil {
		slog.Warn("closing vector index", "error", err)
	}
	if err := a.tracing.Shutdown(ctx); err != nil {
		slog.Warn("flushing traces", "error", err)
	}
}
