// Package sqldb implements storage.Source and storage.Warehouse on top of
// database/sql. The SQL that differs between engines (placeholders,
// identifier quoting, pagination, insert-if-absent, DDL) is isolated in
// Dialect so each backend package only has to open a *sql.DB and pick one.
package sqldb

import (
	"fmt"
	"strings"
)

// Dialect captures the SQL differences between supported databases.
type Dialect struct {
	Name string

	// placeholder returns the bind parameter for the i-th argument (1-based).
	placeholder func(i int) string
	quote       func(part string) string

	textType  string
	moneyType string

	// insertIfAbsent builds an atomic conditional insert. keyIdx is the
	// index of the primary key within cols.
	insertIfAbsent func(d Dialect, table string, cols []string, keyIdx int) string

	// paginate appends key ordering plus offset/limit and returns the bind
	// order ("offset,limit" or "limit,offset").
	paginate func(d Dialect, query, orderBy string) (string, bool)

	createTable func(d Dialect, table, body string) string
}

var (
	// MySQL uses ON DUPLICATE KEY UPDATE with a no-op assignment; with the
	// driver's default client flags an unchanged row reports 0 affected rows.
	MySQL = Dialect{
		Name:        "mysql",
		placeholder: func(int) string { return "?" },
		quote:       func(p string) string { return "`" + strings.ReplaceAll(p, "`", "``") + "`" },
		textType:    "VARCHAR(255)",
		moneyType:   "DECIMAL(12,2)",
		insertIfAbsent: func(d Dialect, table string, cols []string, keyIdx int) string {
			key := d.Ident(cols[keyIdx])
			return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s = %s",
				d.Ident(table), d.identList(cols), d.placeholders(len(cols)), key, key)
		},
		paginate:    limitOffset,
		createTable: createIfNotExists,
	}

	Postgres = Dialect{
		Name:           "postgres",
		placeholder:    func(i int) string { return fmt.Sprintf("$%d", i) },
		quote:          doubleQuote,
		textType:       "TEXT",
		moneyType:      "NUMERIC(12,2)",
		insertIfAbsent: onConflictDoNothing,
		paginate:       limitOffset,
		createTable:    createIfNotExists,
	}

	SQLite = Dialect{
		Name:           "sqlite",
		placeholder:    func(int) string { return "?" },
		quote:          doubleQuote,
		textType:       "TEXT",
		moneyType:      "NUMERIC(12,2)",
		insertIfAbsent: onConflictDoNothing,
		paginate:       limitOffset,
		createTable:    createIfNotExists,
	}

	// MSSQL has no ON CONFLICT; the NOT EXISTS check takes UPDLOCK+HOLDLOCK
	// so two writers cannot both pass it for the same key.
	MSSQL = Dialect{
		Name:        "mssql",
		placeholder: func(i int) string { return fmt.Sprintf("@p%d", i) },
		quote:       func(p string) string { return "[" + strings.ReplaceAll(p, "]", "]]") + "]" },
		textType:    "NVARCHAR(255)",
		moneyType:   "DECIMAL(12,2)",
		insertIfAbsent: func(d Dialect, table string, cols []string, keyIdx int) string {
			return fmt.Sprintf(
				"INSERT INTO %s (%s) SELECT %s WHERE NOT EXISTS (SELECT 1 FROM %s WITH (UPDLOCK, HOLDLOCK) WHERE %s = %s)",
				d.Ident(table), d.identList(cols), d.placeholders(len(cols)),
				d.Ident(table), d.Ident(cols[keyIdx]), d.placeholder(keyIdx+1))
		},
		paginate: func(d Dialect, query, orderBy string) (string, bool) {
			return fmt.Sprintf("%s ORDER BY %s OFFSET %s ROWS FETCH NEXT %s ROWS ONLY",
				query, d.Ident(orderBy), d.placeholder(1), d.placeholder(2)), true
		},
		createTable: func(d Dialect, table, body string) string {
			return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE %s (%s)",
				strings.ReplaceAll(table, "'", "''"), d.Ident(table), body)
		},
	}
)

func doubleQuote(p string) string { return `"` + strings.ReplaceAll(p, `"`, `""`) + `"` }

func onConflictDoNothing(d Dialect, table string, cols []string, keyIdx int) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING",
		d.Ident(table), d.identList(cols), d.placeholders(len(cols)), d.Ident(cols[keyIdx]))
}

func limitOffset(d Dialect, query, orderBy string) (string, bool) {
	return fmt.Sprintf("%s ORDER BY %s LIMIT %s OFFSET %s",
		query, d.Ident(orderBy), d.placeholder(1), d.placeholder(2)), false
}

func createIfNotExists(d Dialect, table, body string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", d.Ident(table), body)
}

// Ident quotes a possibly schema-qualified identifier ("dw.sales").
func (d Dialect) Ident(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = d.quote(p)
	}
	return strings.Join(parts, ".")
}

func (d Dialect) identList(cols []string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = d.Ident(c)
	}
	return strings.Join(out, ", ")
}

func (d Dialect) placeholders(n int) string {
	out := make([]string, n)
	for i := range out {
		out[i] = d.placeholder(i + 1)
	}
	return strings.Join(out, ", ")
}

// insertSQL builds a plain INSERT.
func (d Dialect) insertSQL(table string, cols []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", d.Ident(table), d.identList(cols), d.placeholders(len(cols)))
}

// pageArgs returns offset and limit in the bind order of the dialect.
func pageArgs(offsetFirst bool, offset, limit int) []any {
	if offsetFirst {
		return []any{offset, limit}
	}
	return []any{limit, offset}
}
