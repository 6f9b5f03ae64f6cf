package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/your-org/eid-storefront/internal/config"
	"github.com/your-org/eid-storefront/internal/infrastructure/database/postgres"
	"github.com/your-org/eid-storefront/internal/infrastructure/database/redis"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// Open builds the store selected by cfg.Storage.Driver. The returned closer
// releases any connection the driver opened.
func Open(ctx context.Context, cfg *config.Config) (Store, io.Closer, error) {
	switch cfg.Storage.Driver {
	case config.StorageMemory:
		return NewMemoryStore(), nopCloser{}, nil

	case config.StorageFile:
		return NewFileStore(cfg.Storage.FilePath), nopCloser{}, nil

	case config.StorageRedis:
		client, err := redis.NewConnection(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return redis.NewStore(client.Redis, cfg.Storage.KeyPrefix), closerFunc(client.Close), nil

	case config.StoragePostgres:
		db, err := postgres.NewConnection(cfg)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Health(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("database health check failed: %w", err)
		}
		migration := postgres.NewMigration(db.GetDB())
		if err := migration.RunAutoMigrations(); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("database migration failed: %w", err)
		}
		if err := migration.CreateIndexes(); err != nil {
			db.Close()
			return nil, nil, err
		}
		return postgres.NewStore(db.GetDB(), cfg.Storage.KeyPrefix), closerFunc(db.Close), nil
	}

	return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}
