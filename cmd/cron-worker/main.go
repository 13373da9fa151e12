package main

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/tokenizr-backend/internal/cron"
	"github.com/angelmondragon/tokenizr-backend/internal/notifications"
	"github.com/angelmondragon/tokenizr-backend/pkg/bootstrap"
	"github.com/angelmondragon/tokenizr-backend/pkg/metrics"
	"github.com/angelmondragon/tokenizr-backend/pkg/outbox"
)

func main() {
	proc := bootstrap.Start("cron-worker")
	defer proc.Close()
	cfg, logg := proc.Config, proc.Logger

	dbClient := proc.Database(context.Background())
	redisClient := proc.Redis(context.Background())

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg.App.Env)), 0)
	if err != nil {
		proc.Fatal("failed to create maintenance lock", err)
	}

	notificationCleanup, err := cron.NewNotificationCleanupJob(cron.NotificationCleanupParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: notifications.NewRetentionRepository(dbClient.DB()),
		Retention:  cfg.Maintenance.NotificationRetention,
	})
	if err != nil {
		proc.Fatal("failed to create notification cleanup job", err)
	}
	outboxRetention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionParams{
		Logger:           logg,
		DB:               dbClient,
		Repository:       outbox.NewRepository(dbClient.DB()),
		Retention:        cfg.Maintenance.OutboxRetention,
		TerminalAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		proc.Fatal("failed to create outbox retention job", err)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Jobs:     []cron.Job{notificationCleanup, outboxRetention},
		Lock:     lock,
		Metrics:  metrics.NewMaintenanceMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Maintenance.Interval,
	})
	if err != nil {
		proc.Fatal("failed to create maintenance service", err)
	}

	ctx, stop := proc.SignalContext("cron-0", map[string]any{"interval": cfg.Maintenance.Interval.String()})
	defer stop()
	logg.Info(ctx, "starting cron worker")

	go func() {
		if err := metrics.Serve(ctx, cfg.Service.MetricsAddr, prometheus.DefaultGatherer, logg); err != nil {
			logg.Error(ctx, "metrics listener failed", err)
		}
	}()

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		proc.Fatal("cron worker stopped unexpectedly", err)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

// lockName scopes the lease to one environment.
func lockName(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
