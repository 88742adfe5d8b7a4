package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/newrelic/go-agent/v3/newrelic"

	"carpool/internal/config"
	"carpool/internal/logger"
	"carpool/internal/repository"
	"carpool/internal/repository/memory"
	"carpool/internal/repository/postgres"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// NewStore builds the repository store selected by cfg.Driver. For
// postgres it connects, migrates and returns the pool so the caller can
// close it; for memory the returned *sql.DB is nil.
func NewStore(ctx context.Context, cfg config.DatabaseConfig, nrApp *newrelic.Application) (repository.Store, *sql.DB, error) {
	switch cfg.Driver {
	case DriverMemory:
		store := memory.NewStore()
		if cfg.MemorySeedPath == "" {
			logger.Log.Warnw("using in-memory store without a seed; no vehicles exist, so rides cannot be offered")
			return store, nil, nil
		}
		seed, err := LoadMemorySeed(cfg.MemorySeedPath)
		if err != nil {
			return nil, nil, err
		}
		if err := ApplyMemorySeed(ctx, store, seed); err != nil {
			return nil, nil, fmt.Errorf("apply memory seed: %w", err)
		}
		logger.Log.Warnw("using in-memory store; data is lost on restart",
			"seed", cfg.MemorySeedPath,
			"users", len(seed.Users),
			"vehicles", len(seed.Vehicles),
		)
		return store, nil, nil

	case DriverPostgres, "":
		db, err := NewDatabase(ctx, cfg, nrApp)
		if err != nil {
			return nil, nil, err
		}
		if err := RunMigrations(db, cfg.MigrationsPath); err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Log.Infow("connected to PostgreSQL", "host", cfg.Host, "db", cfg.DBName)
		return postgres.NewStore(db), db, nil

	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
