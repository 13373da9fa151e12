package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/tokenizr-backend/api/routes"
	"github.com/angelmondragon/tokenizr-backend/internal/drafts"
	"github.com/angelmondragon/tokenizr-backend/internal/ledger"
	"github.com/angelmondragon/tokenizr-backend/internal/notifications"
	"github.com/angelmondragon/tokenizr-backend/internal/timeline"
	"github.com/angelmondragon/tokenizr-backend/internal/tokenization"
	"github.com/angelmondragon/tokenizr-backend/pkg/bootstrap"
	"github.com/angelmondragon/tokenizr-backend/pkg/env"
	"github.com/angelmondragon/tokenizr-backend/pkg/metrics"
	"github.com/angelmondragon/tokenizr-backend/pkg/outbox"
)

const shutdownTimeout = 15 * time.Second

func main() {
	proc := bootstrap.Start("api")
	defer proc.Close()
	cfg, logg := proc.Config, proc.Logger

	dbClient := proc.Database(context.Background())
	redisClient := proc.Redis(context.Background())

	live, err := notifications.NewRedisLive(redisClient)
	if err != nil {
		proc.Fatal("failed to create live channel", err)
	}

	draftRepo := drafts.NewRepository(dbClient.DB())
	draftService, err := drafts.NewService(draftRepo)
	if err != nil {
		proc.Fatal("failed to create drafts service", err)
	}
	notificationsService, err := notifications.NewService(notifications.NewRepository(dbClient.DB()), live, logg, cfg.Live.PushTimeout)
	if err != nil {
		proc.Fatal("failed to create notifications service", err)
	}
	auditLedger, err := ledger.NewService(ledger.NewRepository(dbClient.DB()))
	if err != nil {
		proc.Fatal("failed to create audit ledger", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		dbClient.StatsCollector("tokenizr"),
	)

	tokenizationService, err := tokenization.NewService(tokenization.Config{
		Drafts:        draftRepo,
		Tx:            dbClient,
		Notifications: notificationsService,
		Outbox:        outbox.NewEmitter(outbox.NewRepository(dbClient.DB()), logg),
		Audit:         auditLedger,
		Timeline: timeline.Defaults{
			UtilityDays:  cfg.Timeline.UtilityLaunchDays,
			SecurityDays: cfg.Timeline.SecurityLaunchDays,
		},
		Metrics: metrics.NewTransitionMetrics(reg),
		Logger:  logg,
	})
	if err != nil {
		proc.Fatal("failed to create tokenization service", err)
	}

	addr := ":" + env.Get("PORT", cfg.App.Port)
	ctx, stop := proc.SignalContext("local", map[string]any{"addr": addr})
	defer stop()

	// open notification streams only end when their request context does
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	server := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			redisClient,
			live,
			draftService,
			tokenizationService,
			notificationsService,
			auditLedger,
			outbox.NewDeadLetters(dbClient.DB()),
			promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		),
	}
	server.RegisterOnShutdown(cancelBase)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	logg.Info(ctx, "starting api server")

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			proc.Fatal("api server stopped unexpectedly", err)
		}
	case <-ctx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}
}
