package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/uptimer-dev/uptimer/internal/api"
	"github.com/uptimer-dev/uptimer/internal/checker"
	"github.com/uptimer-dev/uptimer/internal/config"
	"github.com/uptimer-dev/uptimer/internal/monitor"
	"github.com/uptimer-dev/uptimer/internal/notifier"
	"github.com/uptimer-dev/uptimer/internal/safenet"
	"github.com/uptimer-dev/uptimer/internal/statuspage"
	"github.com/uptimer-dev/uptimer/internal/storage"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("uptimer %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Logging)
	logger.Info("starting uptimer", "version", version, "listen", cfg.Server.Listen)

	store, err := storage.NewSQLiteStore(cfg.Database.Path, cfg.Database.MaxReadConns)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("database opened", "path", cfg.Database.Path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	guard := safenet.Guard{
		AllowPrivate:   cfg.Scheduler.AllowPrivateTargets,
		AllowlistHosts: cfg.Scheduler.AllowlistHosts,
	}
	registry := checker.DefaultRegistry(guard)
	dispatcher := notifier.NewDispatcher(store, logger, cfg.Notifier.Concurrency, cfg.Notifier.DefaultTimeout)

	sched := monitor.NewScheduler(store, registry, dispatcher, monitor.Options{
		TickIntervalSec:  int64(cfg.Scheduler.TickInterval / time.Second),
		MaxPerTick:       cfg.Scheduler.MaxPerTick,
		ProbeConcurrency: cfg.Scheduler.ProbeConcurrency,
		RetentionDays:    cfg.Retention.CheckResultsDays,
	}, logger)

	ticker := startTicker(ctx, cfg, sched, logger)
	defer ticker.Stop()

	agg := statuspage.NewAggregator(store, logger)
	cache := statuspage.NewCache(store, agg, logger)

	srv := api.NewServer(cfg, store, agg, cache, logger)
	defer srv.Close()
	httpServer := startHTTPServer(cfg, srv, logger, cancel)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received signal, shutting down", "signal", sig)
	case <-ctx.Done():
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}

// startTicker registers the scheduler tick on a cron @every schedule. The
// tick budget equals the tick interval; a tick still running at the next
// boundary loses the lease race and the overlap tick exits silently.
func startTicker(ctx context.Context, cfg *config.Config, sched *monitor.Scheduler, logger *slog.Logger) *cron.Cron {
	c := cron.New()
	spec := fmt.Sprintf("@every %s", cfg.Scheduler.TickInterval)
	_, err := c.AddFunc(spec, func() {
		tickCtx, cancel := context.WithTimeout(ctx, cfg.Scheduler.TickInterval)
		defer cancel()
		if err := sched.Tick(tickCtx, time.Now().Unix()); err != nil {
			logger.Error("scheduler tick", "error", err)
		}
	})
	if err != nil {
		logger.Error("register tick schedule", "error", err)
		os.Exit(1)
	}
	c.Start()
	return c
}

func startHTTPServer(cfg *config.Config, handler http.Handler, logger *slog.Logger, cancel context.CancelFunc) *http.Server {
	httpServer := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", "listen", cfg.Server.Listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	return httpServer
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
