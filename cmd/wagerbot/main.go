package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/wagerbot/config"
	"github.com/alejandrodnm/wagerbot/internal/adapters/lease"
	"github.com/alejandrodnm/wagerbot/internal/adapters/notify"
	"github.com/alejandrodnm/wagerbot/internal/adapters/storage"
	"github.com/alejandrodnm/wagerbot/internal/domain"
	"github.com/alejandrodnm/wagerbot/internal/ports"
	"github.com/alejandrodnm/wagerbot/internal/wager"
)

// app agrupa lo que comparten los modos de ejecución.
type app struct {
	cfg       *config.Config
	loc       *time.Location
	store     *storage.SQLiteStorage
	formatter *notify.Formatter
	console   *notify.Console
	publisher ports.ResultPublisher
	lease     ports.Lease
	odds      domain.OddsCalculator
	scheduler wager.SchedulerConfig
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one lock sweep, print open wagers and exit")
	dryRun := flag.Bool("dry-run", false, "in-memory platform and storage, no Discord connection")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	top := flag.Int("top", 0, "print the top N leaderboard and exit")
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

	slog.Info("wagerbot starting",
		"config", *configPath,
		"interval", cfg.SweepInterval(),
		"timezone", cfg.Discord.Timezone,
		"dry_run", *dryRun,
		"once", *once,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dsn := cfg.Storage.DSN
	if *dryRun {
		dsn = ":memory:"
	}
	store, err := storage.NewSQLiteStorage(dsn)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", dsn)
		os.Exit(1)
	}
	defer store.Close()

	loc, _ := cfg.Location() // validado en config.Load
	formatter := notify.NewFormatter(loc)
	console := notify.NewConsole(formatter)

	if *top > 0 {
		entries, err := store.Top(ctx, *top)
		if err != nil {
			slog.Error("failed to read leaderboard", "err", err)
			os.Exit(1)
		}
		console.PrintLeaderboard(entries)
		return
	}

	l, closeLease := buildLease(ctx, cfg.Redis)
	defer closeLease()

	publishers := notify.Fanout{console}
	if cfg.Discord.WebhookURL != "" {
		publishers = append(publishers, notify.NewWebhook(cfg.Discord.WebhookURL, formatter))
	}

	schedCfg := wager.DefaultSchedulerConfig()
	schedCfg.Interval = cfg.SweepInterval()
	schedCfg.WagerTimeout = cfg.WagerTimeout()
	schedCfg.LeaseTTL = cfg.LeaseTTL()
	schedCfg.Once = *once

	rt := &app{
		cfg:       cfg,
		loc:       loc,
		store:     store,
		formatter: formatter,
		console:   console,
		publisher: publishers,
		lease:     l,
		odds: domain.OddsCalculator{
			BasePoints:           cfg.Odds.BasePoints,
			FallbackPoints:       cfg.Odds.FallbackPoints,
			ZeroWinnerMultiplier: cfg.Odds.ZeroWinnerMultiplier,
		},
		scheduler: schedCfg,
	}

	if *dryRun {
		err = runDryRun(ctx, rt)
	} else {
		err = runDiscord(ctx, rt)
	}
	if err != nil {
		slog.Error("wagerbot exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("wagerbot stopped cleanly")
}

// buildLease usa Redis si está configurado; si no, un lease en memoria.
func buildLease(ctx context.Context, cfg config.RedisConfig) (ports.Lease, func()) {
	if cfg.Addr == "" {
		return lease.NewLocal(nil), func() {}
	}
	r, err := lease.NewRedis(ctx, lease.RedisConfig{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		TLS:      cfg.TLS,
	})
	if err != nil {
		slog.Warn("redis unavailable, falling back to local lease", "addr", cfg.Addr, "err", err)
		return lease.NewLocal(nil), func() {}
	}
	slog.Info("scheduler lease on redis", "addr", cfg.Addr)
	return r, func() { r.Close() }
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
