package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/tokenizr-backend/pkg/config"
	"github.com/angelmondragon/tokenizr-backend/pkg/db"
	"github.com/angelmondragon/tokenizr-backend/pkg/logger"
)

// MaybeRunDev applies the embedded migrations at boot when running in dev
// with TOKENIZR_AUTO_MIGRATE set. Other environments run cmd/migrate.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	fsys, err := Migrations()
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}
	runner, err := NewRunner(sqlDB, fsys)
	if err != nil {
		return err
	}

	ctx = logg.WithField(ctx, "env", cfg.App.Env)
	pending, err := runner.Pending(ctx)
	if err != nil {
		return err
	}
	if !pending {
		logg.Debug(ctx, "schema up to date")
		return nil
	}

	results, err := runner.Up(ctx)
	if err != nil {
		return err
	}
	logg.Info(logg.WithField(ctx, "applied", len(results)), "dev migrations applied")
	return nil
}
