package sqldb

import (
	"context"
	"fmt"
	"strings"
)

// column is one DDL column. typ is either a literal SQL type or one of the
// dialect placeholders "text" and "money".
type column struct {
	name    string
	typ     string
	notNull bool
	primary bool
	refs    string // referenced table, joined on the same column name
}

type tableDef struct {
	name string
	cols []column
}

func (d Dialect) columnType(typ string) string {
	switch typ {
	case "text":
		return d.textType
	case "money":
		return d.moneyType
	}
	return typ
}

func (d Dialect) createTableSQL(t tableDef) string {
	var b strings.Builder
	var fks []string
	for i, c := range t.cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.Ident(c.name))
		b.WriteString(" ")
		b.WriteString(d.columnType(c.typ))
		if c.notNull || c.primary {
			b.WriteString(" NOT NULL")
		}
		if c.primary {
			b.WriteString(" PRIMARY KEY")
		}
		if c.refs != "" {
			fks = append(fks, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)", d.Ident(c.name), d.Ident(c.refs), d.Ident(c.name)))
		}
	}
	for _, fk := range fks {
		b.WriteString(", ")
		b.WriteString(fk)
	}
	return d.createTable(d, t.name, b.String())
}

func (d Dialect) ensureTables(ctx context.Context, ex execer, defs []tableDef) error {
	for _, t := range defs {
		if _, err := ex.ExecContext(ctx, d.createTableSQL(t)); err != nil {
			return fmt.Errorf("%s: create table %s: %w", d.Name, t.name, err)
		}
	}
	return nil
}

// EnsureSchema creates the source tables if they are missing. The
// transaction table has no key: the stream may carry repeated order ids.
func (s *Source) EnsureSchema(ctx context.Context) error {
	t := s.tables
	return s.d.ensureTables(ctx, s.db, []tableDef{
		{name: t.Customers, cols: []column{
			{name: "customer_id", typ: "BIGINT", primary: true},
			{name: "customer_name", typ: "text", notNull: true},
			{name: "gender", typ: "text", notNull: true},
		}},
		{name: t.Products, cols: []column{
			{name: "product_id", typ: "BIGINT", primary: true},
			{name: "product_name", typ: "text", notNull: true},
			{name: "product_price", typ: "money", notNull: true},
			{name: "store_id", typ: "BIGINT", notNull: true},
			{name: "store_name", typ: "text", notNull: true},
			{name: "supplier_id", typ: "BIGINT", notNull: true},
			{name: "supplier_name", typ: "text", notNull: true},
		}},
		{name: t.Transactions, cols: []column{
			{name: "order_id", typ: "BIGINT", notNull: true},
			{name: "order_date", typ: "DATE"},
			{name: "product_id", typ: "BIGINT", notNull: true},
			{name: "quantity", typ: "INT", notNull: true},
			{name: "customer_id", typ: "BIGINT", notNull: true},
			{name: "time_id", typ: "BIGINT", notNull: true},
		}},
	})
}

// EnsureSchema creates the warehouse star schema if it is missing. The sales
// table is keyed by order_id and references every dimension.
func (w *Warehouse) EnsureSchema(ctx context.Context) error {
	t := w.tables
	return w.d.ensureTables(ctx, w.db, []tableDef{
		{name: t.Product, cols: []column{
			{name: "product_id", typ: "BIGINT", primary: true},
			{name: "product_name", typ: "text", notNull: true},
			{name: "product_price", typ: "money", notNull: true},
		}},
		{name: t.Customer, cols: []column{
			{name: "customer_id", typ: "BIGINT", primary: true},
			{name: "customer_name", typ: "text", notNull: true},
			{name: "gender", typ: "text", notNull: true},
		}},
		{name: t.Store, cols: []column{
			{name: "store_id", typ: "BIGINT", primary: true},
			{name: "store_name", typ: "text", notNull: true},
		}},
		{name: t.Supplier, cols: []column{
			{name: "supplier_id", typ: "BIGINT", primary: true},
			{name: "supplier_name", typ: "text", notNull: true},
		}},
		{name: t.Time, cols: []column{
			{name: "time_id", typ: "BIGINT", primary: true},
			{name: "order_date", typ: "DATE", notNull: true},
			{name: "day", typ: "INT", notNull: true},
			{name: "week", typ: "INT", notNull: true},
			{name: "month", typ: "INT", notNull: true},
			{name: "year", typ: "INT", notNull: true},
			{name: "quarter", typ: "INT", notNull: true},
		}},
		{name: t.Sales, cols: []column{
			{name: "order_id", typ: "BIGINT", primary: true},
			{name: "quantity", typ: "INT", notNull: true},
			{name: "customer_id", typ: "BIGINT", notNull: true, refs: t.Customer},
			{name: "product_id", typ: "BIGINT", notNull: true, refs: t.Product},
			{name: "store_id", typ: "BIGINT", notNull: true, refs: t.Store},
			{name: "supplier_id", typ: "BIGINT", notNull: true, refs: t.Supplier},
			{name: "total_sales", typ: "DECIMAL(14,2)", notNull: true},
			{name: "time_id", typ: "BIGINT", notNull: true, refs: t.Time},
		}},
	})
}
