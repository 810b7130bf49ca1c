// Package postgres wires the Postgres backend into the storage factory using
// pgx v5 through its database/sql adapter. Registration happens in init.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"meshjoin/internal/storage"
	"meshjoin/internal/storage/sqldb"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

func init() {
	storage.Register("postgres", sqldb.Backend(sqldb.Postgres, Open))
}

// Open parses a pgx connection string (URL or key/value form) and opens a
// verified pool.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres dsn: %w", err)
	}
	return sqldb.Ping(ctx, "postgres", stdlib.OpenDB(*cfg))
}
