package main

import (
	"context"
	"errors"

	"github.com/angelmondragon/tokenizr-backend/internal/notifications"
	"github.com/angelmondragon/tokenizr-backend/pkg/bootstrap"
	"github.com/angelmondragon/tokenizr-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/tokenizr-backend/pkg/pubsub"
)

func main() {
	proc := bootstrap.Start("worker")
	defer proc.Close()
	cfg, logg := proc.Config, proc.Logger

	reviewers, err := cfg.Review.ReviewerIDs()
	if err != nil {
		proc.Fatal("invalid reviewer configuration", err)
	}

	dbClient := proc.Database(context.Background())
	redisClient := proc.Redis(context.Background())
	pubsubClient := proc.PubSub(context.Background(), pubsub.ConsumerRequirements(cfg.PubSub))

	live, err := notifications.NewRedisLive(redisClient)
	if err != nil {
		proc.Fatal("failed to create live channel", err)
	}
	notificationsService, err := notifications.NewService(notifications.NewRepository(dbClient.DB()), live, logg, cfg.Live.PushTimeout)
	if err != nil {
		proc.Fatal("failed to create notifications service", err)
	}

	claims, err := idempotency.NewClaims(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		proc.Fatal("failed to create idempotency claims", err)
	}
	reviewConsumer, err := notifications.NewReviewConsumer(notificationsService, pubsubClient.TokenizationSubscription(), claims, reviewers, logg)
	if err != nil {
		proc.Fatal("failed to create review consumer", err)
	}

	service, err := NewService(ServiceParams{
		Config:         cfg,
		Logger:         logg,
		DB:             dbClient,
		Redis:          redisClient,
		PubSub:         pubsubClient,
		ReviewConsumer: reviewConsumer,
	})
	if err != nil {
		proc.Fatal("failed to create worker", err)
	}

	ctx, stop := proc.SignalContext("worker-0", map[string]any{"reviewers": len(reviewers)})
	defer stop()
	logg.Info(ctx, "starting worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		proc.Fatal("worker stopped unexpectedly", err)
	}
	logg.Info(ctx, "worker shutting down gracefully")
}
