package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-telegram/bot"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	presalecore "github.com/tokenpad/presale-core"
	"github.com/tokenpad/presale-core/internal/config"
	"github.com/tokenpad/presale-core/internal/mailer"
	"github.com/tokenpad/presale-core/internal/metrics"
	"github.com/tokenpad/presale-core/internal/notify"
	"github.com/tokenpad/presale-core/internal/repository"
	"github.com/tokenpad/presale-core/internal/service"
	"github.com/tokenpad/presale-core/internal/telegram"
	"github.com/tokenpad/presale-core/internal/worker"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to database
	dbPool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	// Run migrations
	migrationsFS, err := fs.Sub(presalecore.MigrationsFS, "migrations")
	if err != nil {
		slog.Error("failed to load embedded migrations", "error", err)
		os.Exit(1)
	}
	if err := repository.RunMigrations(cfg.DatabaseURL, migrationsFS); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	store := repository.NewStore(dbPool)
	metrics.Register()

	// Optional Redis claim nudges
	var (
		nudger   *notify.RedisNudger
		nudgeCh  <-chan struct{}
		svcNudge service.Nudger
	)
	if cfg.RedisAddr != "" {
		nudger = notify.NewRedisNudger(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, config.NudgeChannel)
		defer nudger.Close()
		nudgeCh = nudger.Listen(ctx)
		svcNudge = nudger
	}

	// Initialize services
	invoiceService := service.NewInvoiceService(store, cfg, svcNudge)
	queueService := service.NewQueueService(store, svcNudge)

	mailSender, err := mailer.New(cfg)
	if err != nil {
		slog.Error("failed to initialize mailer", "error", err)
		os.Exit(1)
	}

	// Optional Telegram ops alerts
	var alerts worker.Alerter
	if cfg.BotToken != "" {
		b, err := bot.New(cfg.BotToken)
		if err != nil {
			slog.Error("failed to create telegram bot", "error", err)
			os.Exit(1)
		}
		alerts = telegram.NewAlerter(b, cfg)
	}

	pool := worker.NewPool(store, mailSender, worker.Options{
		Workers:      cfg.Workers,
		PollInterval: cfg.PollInterval,
		Lease:        cfg.LeaseDuration,
		Policy:       cfg.RetryPolicy(),
		Nudge:        nudgeCh,
		Alerts:       alerts,
	})

	// Metrics endpoint
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: mux,
	}
	go func() {
		slog.Info("metrics listening", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server", "error", err)
		}
	}()

	// Invoice expiry sweep
	go func() {
		ticker := time.NewTicker(config.ExpirySweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := invoiceService.ExpireStale(context.Background())
				if err != nil {
					slog.Error("expire stale invoices", "error", err)
					continue
				}
				if n > 0 {
					metrics.InvoicesExpiredTotal.Add(float64(n))
					slog.Info("expired stale invoices", "count", n)
				}
			}
		}
	}()

	// Stuck-job gauge refresh
	go func() {
		ticker := time.NewTicker(config.HealthRefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := queueService.RefreshHealth(context.Background()); err != nil {
					slog.Error("refresh queue health", "error", err)
				}
			}
		}
	}()

	// Run delivery workers until shutdown
	slog.Info("starting delivery workers", "workers", cfg.Workers, "poll_interval", cfg.PollInterval.String())
	pool.Run(ctx)

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("metrics shutdown", "error", err)
	}
	slog.Info("workers stopped gracefully")
}
