// Package mysql wires the MySQL backend (go-sql-driver/mysql) into the
// storage factory. Registration happens in init.
package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"meshjoin/internal/storage"
	"meshjoin/internal/storage/sqldb"

	"github.com/go-sql-driver/mysql"
)

func init() {
	storage.Register("mysql", sqldb.Backend(sqldb.MySQL, Open))
}

// Open parses a go-sql-driver DSN ("user:pass@tcp(host:3306)/db") and opens a
// verified pool. DATE columns are decoded into time.Time.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	cfg, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	conn, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql: connector: %w", err)
	}
	return sqldb.Ping(ctx, "mysql", sql.OpenDB(conn))
}

// ParseDSN validates dsn and applies the options the engine relies on.
func ParseDSN(dsn string) (*mysql.Config, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	return cfg, nil
}
