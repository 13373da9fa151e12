package main

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/tokenizr-backend/pkg/bootstrap"
	"github.com/angelmondragon/tokenizr-backend/pkg/metrics"
	"github.com/angelmondragon/tokenizr-backend/pkg/outbox"
	"github.com/angelmondragon/tokenizr-backend/pkg/outbox/registry"
	"github.com/angelmondragon/tokenizr-backend/pkg/pubsub"
)

func main() {
	proc := bootstrap.Start("outbox-publisher")
	defer proc.Close()
	cfg, logg := proc.Config, proc.Logger

	dbClient := proc.Database(context.Background())
	pubsubClient := proc.PubSub(context.Background(), pubsub.PublisherRequirements(cfg.PubSub))

	router, err := registry.NewRouter(cfg.PubSub, registry.Tokenization())
	if err != nil {
		proc.Fatal("failed to build event router", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), dbClient.StatsCollector("tokenizr"))

	relay, err := NewRelay(RelayParams{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		PubSub:        pubsubClient,
		Repository:    outbox.NewRepository(dbClient.DB()),
		Registry:      router,
		DLQRepository: outbox.NewDeadLetters(dbClient.DB()),
		Metrics:       metrics.NewRelayMetrics(reg),
	})
	if err != nil {
		proc.Fatal("failed to create outbox relay", err)
	}

	ctx, stop := proc.SignalContext("outbox-0", map[string]any{
		"topic":        cfg.PubSub.TokenizationTopic,
		"max_attempts": cfg.Outbox.MaxAttempts,
	})
	defer stop()
	logg.Info(ctx, "starting outbox publisher")

	go func() {
		if err := metrics.Serve(ctx, cfg.Service.MetricsAddr, reg, logg); err != nil {
			logg.Error(ctx, "metrics listener failed", err)
		}
	}()

	if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		proc.Fatal("outbox publisher stopped unexpectedly", err)
	}
	logg.Info(ctx, "outbox publisher shutting down gracefully")
}
