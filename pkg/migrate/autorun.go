package migrate

import (
	"context"
	"fmt"

	"github.com/lootbay/marketplace-backend/pkg/config"
	"github.com/lootbay/marketplace-backend/pkg/db"
	"github.com/lootbay/marketplace-backend/pkg/db/models"
	"github.com/lootbay/marketplace-backend/pkg/logger"
)

// MaybeRunDev brings the schema up to date at boot when the environment is
// dev and LOOTBAY_AUTO_MIGRATE is set. Postgres gets the embedded goose
// migrations; sqlite gets gorm's AutoMigrate over the model set.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if cfg == nil || client == nil || !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "postgres": client.IsPostgres()})

	if !client.IsPostgres() {
		if err := client.DB().AutoMigrate(models.All()...); err != nil {
			return fmt.Errorf("sqlite auto-migrate: %w", err)
		}
		logg.Info(ctx, "sqlite schema migrated")
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}
	results, err := Run(ctx, sqlDB, Embedded(), "up")
	if err != nil {
		return err
	}
	logg.Info(logg.WithField(ctx, "applied", len(results)), "postgres schema migrated")
	return nil
}
