package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/efebarandurmaz/jobscout/internal/api"
	"github.com/efebarandurmaz/jobscout/internal/embedding"
	"github.com/efebarandurmaz/jobscout/internal/server"
	"github.com/efebarandurmaz/jobscout/internal/vector"
)

const version = "0.1.0"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "jobscout",
		Short:        "Aggregate job postings and search them semantically",
		Version:      version,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (YAML)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}

	var (
		query   string
		country string
		filters []string
	)
	searchCmd := &cobra.Command{
		Use:   "search",
		Short: "Run one search and print the ranked jobs as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseFilters(filters)
			if err != nil {
				return err
			}
			if country != "" {
				f["country"] = country
			}
			return runSearch(cmd.Context(), configPath, query, f)
		},
	}
	searchCmd.Flags().StringVar(&query, "query", "", "Search query")
	searchCmd.Flags().StringVar(&country, "country", "", "Country code, e.g. de")
	searchCmd.Flags().StringArrayVar(&filters, "filter", nil, "Extra filter as key=value (repeatable)")
	_ = searchCmd.MarkFlagRequired("query")

	backendsCmd := &cobra.Command{
		Use:   "backends",
		Short: "List vector backends and embedding providers",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Vector backends:")
			for _, b := range vector.Backends {
				fmt.Printf("  %s\n", b)
			}
			fmt.Println()
			fmt.Println("Embedding providers (memory backend):")
			names := make([]string, 0, len(embedding.KnownProviders))
			for name := range embedding.KnownProviders {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Printf("  %-10s %s\n", name, embedding.KnownProviders[name])
			}
			fmt.Println()
			fmt.Println("Configure in jobscout.yaml or via environment:")
			fmt.Println("  JOBSCOUT_VECTOR_BACKEND=qdrant")
			fmt.Println("  JOBSCOUT_VENDOR_API_KEY=...")
		},
	}

	rootCmd.AddCommand(serveCmd, searchCmd, backendsCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func runServe(ctx context.Context, configPath string) error {
	a, err := loadApp(ctx, configPath)
	if err != nil {
		return err
	}

	health := a.healthServer()
	opts := []api.Option{
		api.WithJobLookup(a.vendor),
		api.WithHealth(health),
		api.WithMetrics(a.metrics.Handler()),
	}
	if a.text != nil {
		opts = append(opts, api.WithTextProcessor(a.text))
	}
	srv := api.NewServer(&api.Config{
		ListenAddr:   a.cfg.Server.Addr,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}, a.service, opts...)

	shutdown := server.NewShutdownHandler(&server.ShutdownConfig{Timeout: a.cfg.Server.ShutdownTimeout})
	shutdown.Add(server.HTTPServerShutdownHook("api", func(ctx context.Context) error {
		health.SetReady(false)
		return srv.Stop(ctx)
	}))
	shutdown.Add(server.TracingShutdownHook(a.tracing.Shutdown))
	shutdown.Add(server.IndexShutdownHook(a.index.Close))
	shutdown.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		select {
		case <-shutdown.Stopping():
		case <-gctx.Done():
			shutdown.Shutdown()
		}
		shutdown.Wait()
		return nil
	})

	health.SetReady(true)
	slog.Info("jobscout ready", "addr", a.cfg.Server.Addr, "backend", a.index.Backend())
	return g.Wait()
}

func runSearch(ctx context.Context, configPath, query string, filters map[string]string) error {
	a, err := loadApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	docs, err := a.service.SearchRelevantJobs(ctx, query, filters)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(docs)
}

// parseFilters turns key=value pairs into a filter map.
func parseFilters(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid filter %q, want key=value", p)
		}
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}
