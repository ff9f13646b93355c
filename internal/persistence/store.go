package persistence

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/config"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/repository"
)

// OpenTicketStore picks the Postgres store when a pool is available and runs
// migrations if enabled. Otherwise it returns the in-memory store.
func OpenTicketStore(ctx context.Context, pg *Postgres, cfg config.PostgresConfig, logger *zap.Logger) (repository.Store, error) {
	if !pg.Enabled() {
		return repository.NewMemoryStore(nil), nil
	}
	if cfg.RunMigrations {
		if err := RunMigrations(ctx, pg.Pool, cfg.MigrationsDir, logger); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	return repository.NewPostgresStore(pg.Pool), nil
}
