package persistence

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/vestlabs/vesting-service/internal/config"
	"github.com/vestlabs/vesting-service/internal/repository"
	"github.com/vestlabs/vesting-service/migrations"
)

// OpenStore opens the record store selected by cfg.Store.Driver. The returned
// cleanup releases every resource the store holds.
func OpenStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.Store, func(), error) {
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		pg, err := NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if pg.PoolHandle() == nil {
			return nil, nil, fmt.Errorf("postgres store selected without POSTGRES_DSN")
		}
		if cfg.Postgres.RunMigrations {
			if err := RunMigrations(ctx, pg.PoolHandle(), migrations.FS, logger); err != nil {
				pg.Close()
				return nil, nil, err
			}
		}
		return repository.NewPostgresStore(pg.PoolHandle()), pg.Close, nil

	case config.StoreDriverSQLite:
		store, err := repository.NewSQLiteStore(cfg.SQLite.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLite.Path, err)
		}
		logger.Info("opened sqlite store", zap.String("path", cfg.SQLite.Path))
		return store, func() {
			if err := store.Close(); err != nil {
				logger.Warn("close sqlite store", zap.Error(err))
			}
		}, nil

	case config.StoreDriverMemory:
		logger.Warn("using in-memory store; records are lost on restart")
		return repository.NewMemoryStore(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}
