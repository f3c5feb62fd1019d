// Command card-engine runs the unified content backend serving the
// Flasherz flashcard app and the Alities trivia app.
//
// Usage:
//
//	card-engine migrate
//	card-engine serve --config card-engine.yaml
//	card-engine serve --watch-config
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	promclient "github.com/prometheus/client_golang/prometheus"

	cardengine "github.com/billdonner/card-engine"
	"github.com/billdonner/card-engine/pkg/config"
	"github.com/billdonner/card-engine/pkg/family"
	"github.com/billdonner/card-engine/pkg/ingest"
	"github.com/billdonner/card-engine/pkg/logger"
	"github.com/billdonner/card-engine/pkg/observability"
	"github.com/billdonner/card-engine/pkg/server"
	"github.com/billdonner/card-engine/pkg/store"
)

// CLI defines the command-line interface.
type CLI struct {
	Serve   ServeCmd   `cmd:"" help:"Start the HTTP server and ingestion daemon."`
	Migrate MigrateCmd `cmd:"" help:"Apply the database schema and exit."`
	Version VersionCmd `cmd:"" help:"Show version information."`

	Config    string `short:"c" help:"Path to YAML config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (text or json)." default:"text"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(cardengine.GetVersion().String())
	return nil
}

// MigrateCmd applies the schema against the configured database.
type MigrateCmd struct{}

func (c *MigrateCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}

	pool, err := config.NewDBPool(&cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := store.InitSchema(pool); err != nil {
		return err
	}
	slog.Info("schema applied", "database", cfg.Database.Name)
	return nil
}

// ServeCmd starts the HTTP server with the ingestion daemon attached.
type ServeCmd struct {
	WatchConfig bool `name:"watch-config" help:"Watch the config file and hot-reload ingestion pacing."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := config.NewDBPool(&cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	st, err := store.New(pool)
	if err != nil {
		return err
	}
	if err := st.InitSchema(); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	registry := promclient.NewRegistry()
	metrics, err := observability.InitMetrics(registry)
	if err != nil {
		return fmt.Errorf("failed to init metrics: %w", err)
	}

	// The daemon refuses to start without a key, so a nil fetcher is
	// never invoked.
	var fetcher ingest.QuestionFetcher
	if cfg.LLM.OpenAIAPIKey != "" {
		fetcher, err = ingest.NewOpenAIFetcher(cfg.LLM.OpenAIAPIKey)
		if err != nil {
			return err
		}
	} else {
		slog.Warn("CE_OPENAI_API_KEY not set, ingestion stays disabled")
	}

	daemon := ingest.New(st, fetcher, ingest.Config{
		APIKey:            cfg.LLM.OpenAIAPIKey,
		CycleSeconds:      cfg.Ingestion.CycleSeconds,
		BatchSize:         cfg.Ingestion.BatchSize,
		ConcurrentBatches: cfg.Ingestion.ConcurrentBatches,
		AutoStart:         cfg.Ingestion.AutoStart,
	})
	daemon.SetObserver(metrics)

	chat := family.NewChatFromKeys(cfg.LLM.ChatModel, cfg.LLM.OpenAIAPIKey, cfg.LLM.AnthropicAPIKey)

	srv, err := server.New(server.Options{
		Addr:     cfg.Server.Addr(),
		DB:       st,
		Daemon:   daemon,
		Chat:     chat,
		Metrics:  metrics,
		Registry: registry,
	})
	if err != nil {
		return err
	}

	if cfg.Ingestion.AutoStart {
		slog.Info("auto-starting ingestion daemon", "result", daemon.Start())
	}

	if c.WatchConfig && cli.Config != "" {
		go func() {
			err := config.Watch(ctx, cli.Config, func(next *config.Config) {
				daemon.UpdatePacing(next.Ingestion.CycleSeconds,
					next.Ingestion.BatchSize, next.Ingestion.ConcurrentBatches)
			})
			if err != nil && ctx.Err() == nil {
				slog.Error("config watch failed", "error", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		daemon.Stop()
		return err
	}

	// Drain HTTP first so no request observes a stopped daemon, then
	// stop the daemon, then the deferred pool close.
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Stop(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", "error", err)
	}
	daemon.Stop()
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if err := config.LoadEnvFiles(); err != nil {
		slog.Warn("failed to load env files", "error", err)
	}
	return config.Load(path)
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("card-engine"),
		kong.Description("Unified content backend for the Flasherz and Alities apps."),
		kong.UsageOnError(),
	)

	level, err := logger.ParseLevel(cli.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level: %v\n", err)
		os.Exit(1)
	}
	output := os.Stderr
	if cli.LogFile != "" {
		file, cleanup, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()
		output = file
	}
	logger.Init(level, output, cli.LogFormat)

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
