package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/alert"
	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/api"
	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/audit"
	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/cache"
	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/config"
	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/database"
	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/dispatch"
	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/domain"
	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/provider/plaid"
	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/provider/quickbooks"
	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/provider/stripe"
	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/provider/zapier"
	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/repository"
	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/retry"
	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/syncclient"
	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/webhook"
	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := config.NewLogger(cfg.Environment, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting webhook processor",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.Port),
		slog.Int("batch_size", cfg.BatchSize),
		slog.Int("max_retries", cfg.MaxRetries),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPool(ctx, database.DefaultPoolConfig(cfg.DatabaseURL))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	policy, err := retry.NewPolicy(cfg.BackoffSchedule, cfg.MaxRetries)
	if err != nil {
		return fmt.Errorf("invalid retry policy: %w", err)
	}

	queue := repository.NewQueueRepository(pool)
	guard := cache.NewIdempotencyGuard(cache.NewPGCache(pool), cfg.IdempotencyTTL)
	auditLogger := audit.NewSlogLogger(logger)

	hub := ws.NewHub()
	hubCtx, cancelHub := context.WithCancel(ctx)
	defer cancelHub()
	go hub.Run(hubCtx)

	// Alerts fan out to the log, the operator feed and the optional alert webhook
	notifiers := []alert.Notifier{alert.NewLogNotifier(logger), alert.NewHubNotifier(hub)}
	if cfg.AlertWebhookURL != "" {
		alertSender := webhook.NewSender(cfg.AlertWebhookSecret, cfg.SyncTimeout)
		notifiers = append(notifiers, alert.NewWebhookNotifier(alertSender, cfg.AlertWebhookURL))
	}
	alerts := alert.NewFanout(logger, notifiers...)

	syncClient := syncclient.New(webhook.NewSender(cfg.SyncSigningSecret, cfg.SyncTimeout), syncclient.Endpoints{
		BillingURL: cfg.BillingSyncURL,
		FinanceURL: cfg.FinanceSyncURL,
		CRMURL:     cfg.CRMSyncURL,
	}, logger)

	registry := dispatch.NewRegistry(cfg.DispatchTimeout, logger).WithGuard(guard)
	registry.Register(domain.SourceStripe, stripe.New(syncClient, alerts, logger))
	registry.Register(domain.SourceQuickBooks, quickbooks.New(syncClient, logger))
	registry.Register(domain.SourcePlaid, plaid.New(syncClient, alerts, logger))
	registry.Register(domain.SourceZapier, zapier.New(syncClient, logger))

	runner := webhook.NewRunner(queue, registry, alerts, auditLogger, logger, webhook.RunnerConfig{
		BatchSize:    cfg.BatchSize,
		Concurrency:  cfg.WorkerConcurrency,
		ClaimTimeout: cfg.ClaimTimeout,
		Policy:       policy,
	}).WithBroadcaster(hub)

	if cfg.PollInterval > 0 {
		worker := webhook.NewWorker(runner, guard, logger, cfg.PollInterval)
		go worker.Run(ctx)
	}

	if cfg.WatchdogEnabled() {
		rules := alert.DefaultRules(cfg.AlertPendingThreshold, cfg.AlertFailedThreshold, cfg.AlertCooldown)
		watchdog := alert.NewWatchdog(alert.NewEngine(queue), rules, alerts, logger, cfg.AlertCheckInterval)
		go watchdog.Start(ctx)
	}

	router := api.NewRouter(logger, &api.Dependencies{
		DB:               pool,
		Queue:            queue,
		Runner:           runner,
		Guard:            guard,
		Hub:              hub,
		Audit:            auditLogger,
		Secrets:          cfg.IngestSecret,
		TriggerTokenHash: cfg.TriggerTokenHash,
		IngestLimit: middleware.RateLimiterConfig{
			Max:    cfg.IngestRateLimit,
			Window: cfg.IngestRateWindow,
		},
	})
	router.Setup()

	errChan := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info("server listening", slog.String("addr", addr))
		if err := router.Listen(addr); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutting down server...")
	done := make(chan struct{})
	go func() {
		if err := router.Shutdown(); err != nil {
			logger.Error("shutdown error", slog.Any("error", err))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timed out")
	}

	logger.Info("server stopped")
	return nil
}
