// TradeLens: news ingestion and sentiment pipeline for the trading dashboard.
//
// Usage:
//
//	tradelens serve     # HTTP API plus the ingestion scheduler
//	tradelens ingest    # run exactly one ingestion cycle
//	tradelens sources   # list registered sources
//	tradelens version   # print version
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tradelens/tradelens/internal/api"
	"github.com/tradelens/tradelens/internal/extract"
	"github.com/tradelens/tradelens/internal/fetch"
	"github.com/tradelens/tradelens/internal/ingest"
	"github.com/tradelens/tradelens/internal/logbook"
	"github.com/tradelens/tradelens/internal/scheduler"
	"github.com/tradelens/tradelens/internal/sentiment"
	"github.com/tradelens/tradelens/internal/source"
	"github.com/tradelens/tradelens/internal/store"
	"github.com/tradelens/tradelens/pkg/config"
	"github.com/tradelens/tradelens/pkg/llm"
)

var version = "dev"

// Config is the full service configuration, loaded from tradelens.yaml with
// environment overrides.
type Config struct {
	ListenAddr    string        `yaml:"listen_addr" env:"TRADELENS_ADDR"`
	MongoURI      string        `yaml:"mongo_uri" env:"MONGO_URI"`
	MongoDatabase string        `yaml:"mongo_database" env:"MONGO_DATABASE"`
	IngestSecret  string        `yaml:"ingest_secret" env:"INGEST_SECRET"`
	PollInterval  time.Duration `yaml:"poll_interval" env:"TRADELENS_POLL_INTERVAL"`
	FetchTimeout  time.Duration `yaml:"fetch_timeout" env:"TRADELENS_FETCH_TIMEOUT"`
	LLM           llm.Config    `yaml:"llm"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr:    ":8080",
		MongoURI:      "mongodb://localhost:27017",
		MongoDatabase: "tradelens",
		PollInterval:  5 * time.Minute,
		FetchTimeout:  30 * time.Second,
		LLM:           llm.DefaultConfig(),
	}
}

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "tradelens",
		Short: "News ingestion and sentiment pipeline",
		Long:  "TradeLens ingests news from configured sources, normalizes articles with LLM extraction, scores sentiment, and serves the result to the trading dashboard.",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "tradelens.yaml", "path to configuration file")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(ingestCmd(&configPath))
	rootCmd.AddCommand(sourcesCmd(&configPath))
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the ingestion scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*configPath)
		},
	}
}

func ingestCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Run exactly one ingestion cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngestOnce(*configPath)
		},
	}
}

func sourcesCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List registered sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListSources(*configPath)
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tradelens %s\n", version)
		},
	}
}

// app bundles everything a subcommand needs, built once from config.
type app struct {
	cfg      Config
	st       *store.Store
	registry *source.Registry
	orch     *ingest.Orchestrator
	live     *ingest.Live
	llm      llm.Client
}

func buildApp(ctx context.Context, configPath string) (*app, error) {
	cfg := defaultConfig()
	if err := config.LoadOrDefault(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	st, err := store.Open(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	client, err := llm.NewClient(cfg.LLM)
	if err != nil {
		st.Close(ctx)
		return nil, fmt.Errorf("llm client: %w", err)
	}

	log := logbook.New(st, slog.Default())
	registry := source.NewRegistry(st, log)
	fetcher := fetch.NewFetcher(cfg.FetchTimeout, log)
	extractor := extract.NewExtractor(client)
	analyzer := sentiment.NewAnalyzer(client)

	return &app{
		cfg:      cfg,
		st:       st,
		registry: registry,
		orch:     ingest.NewOrchestrator(registry, fetcher, extractor, analyzer, st, log),
		live:     ingest.NewLive(extractor, analyzer, log),
		llm:      client,
	}, nil
}

func (a *app) close(ctx context.Context) {
	_ = a.llm.Close()
	if err := a.st.Close(ctx); err != nil {
		slog.Error("store close failed", "error", err)
	}
}

func runServe(configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	server := api.NewServer(a.orch, a.registry, a.st, a.st, a.live, a.cfg.IngestSecret)
	srv := &http.Server{
		Addr:    a.cfg.ListenAddr,
		Handler: corsMiddleware(server.Routes()),
	}

	sched := scheduler.NewScheduler(slog.Default())
	sched.Add(scheduler.Job{
		Name: "ingestion cycle",
		Fn: func(ctx context.Context) error {
			_, err := a.orch.RunCycle(ctx)
			return err
		},
	})
	go sched.Start(ctx, a.cfg.PollInterval)

	go func() {
		slog.Info("starting API server", "addr", a.cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	return nil
}

func runIngestOnce(configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	res, err := a.orch.RunCycle(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d articles, filtered %d\n", res.Imported, res.Filtered)
	return nil
}

func runListSources(configPath string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a, err := buildApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	sources, err := a.registry.List(ctx)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		fmt.Println("no sources registered")
		return nil
	}
	for _, s := range sources {
		state := "inactive"
		if s.Active {
			state = "active"
		}
		fmt.Printf("%s  %-20s %-4s %-8s %s\n", s.ID.Hex(), s.Name, s.Kind, state, s.URL)
	}
	return nil
}

// corsMiddleware allows the dashboard's local dev origin.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
