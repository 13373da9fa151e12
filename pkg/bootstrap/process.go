// Package bootstrap holds the startup steps every binary shares: environment,
// config, logger, infrastructure handles and ordered shutdown.
package bootstrap

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/tokenizr-backend/pkg/config"
	"github.com/angelmondragon/tokenizr-backend/pkg/db"
	"github.com/angelmondragon/tokenizr-backend/pkg/instance"
	"github.com/angelmondragon/tokenizr-backend/pkg/logger"
	"github.com/angelmondragon/tokenizr-backend/pkg/migrate"
	"github.com/angelmondragon/tokenizr-backend/pkg/pubsub"
	"github.com/angelmondragon/tokenizr-backend/pkg/redis"
)

type closer struct {
	name string
	fn   func() error
}

// Process is one running binary.
type Process struct {
	Name   string
	Config *config.Config
	Logger *logger.Logger

	mu      sync.Mutex
	closers []closer
	exit    func(int)
}

// Start loads .env and config and builds the leveled logger. On failure it
// logs and exits; there is nothing to clean up yet.
func Start(name string) *Process {
	p := &Process{Name: name, Logger: logger.New(logger.Options{ServiceName: name}), exit: os.Exit}

	if err := godotenv.Load(); err != nil {
		p.Logger.Warn(context.Background(), ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		p.Fatal("failed to load config", err)
	}
	cfg.Service.Kind = name
	p.Config = cfg
	p.Logger = logger.New(logger.Options{
		ServiceName: name,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	return p
}

// Fatal logs err, releases what is open and exits non-zero.
func (p *Process) Fatal(msg string, err error) {
	p.Logger.Error(context.Background(), msg, err)
	p.Close()
	p.exit(1)
}

// OnClose registers fn to run at Close. Closers run in reverse order.
func (p *Process) OnClose(name string, fn func() error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closers = append(p.closers, closer{name: name, fn: fn})
}

// Close runs every registered closer once, newest first.
func (p *Process) Close() {
	p.mu.Lock()
	closers := p.closers
	p.closers = nil
	p.mu.Unlock()

	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].fn(); err != nil {
			p.Logger.Error(logCtx(p.Logger, closers[i].name), "error closing "+closers[i].name, err)
		}
	}
}

func logCtx(logg *logger.Logger, resource string) context.Context {
	return logg.WithField(context.Background(), "resource", resource)
}

// Database opens Postgres and applies dev migrations when enabled.
func (p *Process) Database(ctx context.Context) *db.Client {
	client, err := db.New(ctx, p.Config.DB, p.Logger)
	if err != nil {
		p.Fatal("failed to bootstrap database", err)
	}
	p.OnClose("database", client.Close)
	if err := migrate.MaybeRunDev(ctx, p.Config, p.Logger, client); err != nil {
		p.Fatal("failed to run dev migrations", err)
	}
	return client
}

func (p *Process) Redis(ctx context.Context) *redis.Client {
	client, err := redis.New(ctx, p.Config.Redis, p.Logger)
	if err != nil {
		p.Fatal("failed to bootstrap redis", err)
	}
	p.OnClose("redis", client.Close)
	return client
}

func (p *Process) PubSub(ctx context.Context, req pubsub.Requirements) *pubsub.Client {
	client, err := pubsub.NewClient(ctx, p.Config.GCP, p.Config.PubSub, req, p.Logger)
	if err != nil {
		p.Fatal("failed to bootstrap pubsub", err)
	}
	p.OnClose("pubsub client", client.Close)
	return client
}

// SignalContext is canceled on SIGINT or SIGTERM and carries the process
// identity fields.
func (p *Process) SignalContext(instanceFallback string, fields map[string]any) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	base := map[string]any{
		"env":         p.Config.App.Env,
		"instance":    instance.ID(instanceFallback),
		"serviceKind": p.Name,
	}
	for k, v := range fields {
		base[k] = v
	}
	return p.Logger.WithFields(ctx, base), stop
}
