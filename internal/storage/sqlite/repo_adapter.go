// Package sqlite wires the SQLite backend (modernc.org/sqlite, pure Go) into
// the storage factory. Registration happens in init.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"meshjoin/internal/storage"
	"meshjoin/internal/storage/sqldb"

	_ "modernc.org/sqlite"
)

// pragmas are applied by the driver to every pooled connection.
var pragmas = []string{"foreign_keys(1)", "busy_timeout(5000)"}

func init() {
	storage.Register("sqlite", sqldb.Backend(sqldb.SQLite, Open))
}

// Open opens a SQLite database. DSN is a file path or a "file:" URI, e.g.
//
//	"warehouse.db"
//	"file:warehouse.db?cache=shared"
//
// Foreign keys are enforced so the warehouse rejects facts whose dimension
// rows are missing.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	db, err := sql.Open("sqlite", withPragmas(dsn))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	return sqldb.Ping(ctx, "sqlite", db)
}

func withPragmas(dsn string) string {
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	var b strings.Builder
	b.WriteString(dsn)
	for _, p := range pragmas {
		if strings.Contains(dsn, "_pragma="+p) {
			continue
		}
		b.WriteString(sep)
		b.WriteString("_pragma=")
		b.WriteString(p)
		sep = "&"
	}
	return b.String()
}
