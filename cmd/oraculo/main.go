package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/oraculo/config"
	"github.com/alejandrodnm/oraculo/internal/adapters/baserate"
	"github.com/alejandrodnm/oraculo/internal/adapters/notify"
	"github.com/alejandrodnm/oraculo/internal/adapters/storage"
	"github.com/alejandrodnm/oraculo/internal/adapters/venues"
	"github.com/alejandrodnm/oraculo/internal/application"
	"github.com/alejandrodnm/oraculo/internal/ports"
	"github.com/alejandrodnm/oraculo/internal/similarity"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one scan cycle, print the ranking and exit")
	cycle := flag.Bool("cycle", false, "run one full scan-then-decide cycle and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print the full opportunity table (default: compact)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("oraculo starting",
		"config", *configPath,
		"venues", len(cfg.Venues),
		"once", *once,
		"cycle", *cycle,
	)

	store, err := storage.NewSQLiteStore(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	clients := make([]*venues.Client, 0, len(cfg.Venues))
	for _, v := range cfg.Venues {
		clients = append(clients, venues.NewClient(v.Name, v.BaseURL, v.RatePerSec))
	}
	aggregator := venues.NewAggregator(clients...)

	sim := similarity.Default()
	rates := baserate.New(store, sim, cfg.BaseRateWindow(), cfg.BaseRate.MinSimilarity)

	console := notify.NewConsole(*table)
	var notifier ports.Notifier = console
	if cfg.Notify.Channel == "telegram" {
		tg, err := notify.NewTelegram(cfg.Notify.BotToken, cfg.Notify.Recipient)
		if err != nil {
			slog.Error("failed to create telegram notifier", "err", err)
			os.Exit(1)
		}
		notifier = tg
	}

	core, err := application.New(cfg.ToApplication(), application.Deps{
		Venues:   aggregator,
		Rates:    rates,
		Store:    store,
		Notifier: notifier,
	}, sim)
	if err != nil {
		slog.Error("failed to build core", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch {
	case *once:
		opps, err := core.ScanOnce(ctx)
		if err != nil {
			slog.Error("scan failed", "err", err)
			os.Exit(1)
		}
		console.PrintOpportunities(opps)

	case *cycle:
		committed, err := core.ForceCycle(ctx)
		if err != nil {
			slog.Error("cycle failed", "err", err)
			os.Exit(1)
		}
		slog.Info("cycle complete", "committed", len(committed))

	default:
		if err := core.Start(ctx); err != nil {
			slog.Error("failed to start autonomous loop", "err", err)
			os.Exit(1)
		}
		<-ctx.Done()
		core.Stop()
	}

	slog.Info("oraculo stopped cleanly")
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
