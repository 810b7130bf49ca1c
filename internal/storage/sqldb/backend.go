package sqldb

import (
	"context"
	"database/sql"
	"fmt"

	"meshjoin/internal/storage"
)

// OpenFunc opens and verifies a connection pool for a DSN.
type OpenFunc func(ctx context.Context, dsn string) (*sql.DB, error)

// Backend builds the storage.Backend for a dialect. Both factories open their
// own pool, so source and warehouse may point at different servers.
func Backend(d Dialect, open OpenFunc) storage.Backend {
	return storage.Backend{
		OpenSource: func(ctx context.Context, cfg storage.SourceConfig) (storage.Source, error) {
			db, err := open(ctx, cfg.DSN)
			if err != nil {
				return nil, err
			}
			return NewSource(db, d, cfg.Tables), nil
		},
		OpenWarehouse: func(ctx context.Context, cfg storage.WarehouseConfig) (storage.Warehouse, error) {
			db, err := open(ctx, cfg.DSN)
			if err != nil {
				return nil, err
			}
			return NewWarehouse(db, d, cfg.Tables), nil
		},
	}
}

// Ping verifies db and closes it on failure, so callers fail fast on a bad
// DSN or an unreachable server.
func Ping(ctx context.Context, name string, db *sql.DB) (*sql.DB, error) {
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: ping: %w", name, err)
	}
	return db, nil
}
