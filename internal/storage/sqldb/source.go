package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"meshjoin/internal/model"
	"meshjoin/internal/storage"
)

// Source is a database/sql implementation of storage.Source.
type Source struct {
	db     *sql.DB
	d      Dialect
	tables storage.SourceTables
}

var _ storage.Source = (*Source)(nil)

// NewSource wraps an open database. The Source owns db and closes it.
func NewSource(db *sql.DB, d Dialect, tables storage.SourceTables) *Source {
	return &Source{db: db, d: d, tables: tables.WithDefaults()}
}

func (s *Source) table(t storage.Table) (string, error) {
	switch t {
	case storage.TableTransactions:
		return s.tables.Transactions, nil
	case storage.TableCustomers:
		return s.tables.Customers, nil
	case storage.TableProducts:
		return s.tables.Products, nil
	}
	return "", fmt.Errorf("%s: unknown source table %q", s.d.Name, t)
}

// CountRows implements storage.Source.
func (s *Source) CountRows(ctx context.Context, t storage.Table) (int, error) {
	name, err := s.table(t)
	if err != nil {
		return 0, err
	}
	var n int
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s", s.d.Ident(name))
	if err := s.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("%s: count %s: %w", s.d.Name, name, err)
	}
	return n, nil
}

// OpenTransactions implements storage.Source. Rows come back in the table's
// natural order; the stream is not re-sorted.
func (s *Source) OpenTransactions(ctx context.Context) (storage.TransactionCursor, error) {
	q := fmt.Sprintf("SELECT %s FROM %s",
		s.d.identList([]string{"order_id", "order_date", "product_id", "quantity", "customer_id", "time_id"}),
		s.d.Ident(s.tables.Transactions))
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%s: open transactions: %w", s.d.Name, err)
	}
	return &txCursor{rows: rows, dialect: s.d.Name}, nil
}

type txCursor struct {
	rows    *sql.Rows
	dialect string
	line    int
}

func (c *txCursor) Next(_ context.Context) (model.Transaction, error) {
	if !c.rows.Next() {
		if err := c.rows.Err(); err != nil {
			return model.Transaction{}, fmt.Errorf("%s: read transactions: %w", c.dialect, err)
		}
		return model.Transaction{}, io.EOF
	}
	c.line++

	var (
		t    model.Transaction
		date any
	)
	if err := c.rows.Scan(&t.OrderID, &date, &t.ProductID, &t.Quantity, &t.CustomerID, &t.TimeID); err != nil {
		return model.Transaction{}, fmt.Errorf("%s: scan transaction row %d: %w", c.dialect, c.line, err)
	}
	d, err := toDate(date)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("%s: transaction row %d (order %d): %w", c.dialect, c.line, t.OrderID, err)
	}
	t.OrderDate = d
	return t, nil
}

func (c *txCursor) Close() error { return c.rows.Close() }

// ReadCustomers implements storage.Source.
func (s *Source) ReadCustomers(ctx context.Context, offset, limit int) ([]model.Customer, error) {
	base := fmt.Sprintf("SELECT %s FROM %s",
		s.d.identList([]string{"customer_id", "customer_name", "gender"}), s.d.Ident(s.tables.Customers))
	q, offsetFirst := s.d.paginate(s.d, base, "customer_id")

	rows, err := s.db.QueryContext(ctx, q, pageArgs(offsetFirst, offset, limit)...)
	if err != nil {
		return nil, fmt.Errorf("%s: read customers: %w", s.d.Name, err)
	}
	defer rows.Close()

	out := make([]model.Customer, 0, limit)
	for rows.Next() {
		var c model.Customer
		if err := rows.Scan(&c.CustomerID, &c.Name, &c.Gender); err != nil {
			return nil, fmt.Errorf("%s: scan customer: %w", s.d.Name, err)
		}
		c.Name, c.Gender = cleanText(c.Name), cleanText(c.Gender)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: read customers: %w", s.d.Name, err)
	}
	return out, nil
}

// ReadProducts implements storage.Source.
func (s *Source) ReadProducts(ctx context.Context, offset, limit int) ([]model.Product, error) {
	base := fmt.Sprintf("SELECT %s FROM %s",
		s.d.identList([]string{"product_id", "product_name", "product_price"}), s.d.Ident(s.tables.Products))
	q, offsetFirst := s.d.paginate(s.d, base, "product_id")

	rows, err := s.db.QueryContext(ctx, q, pageArgs(offsetFirst, offset, limit)...)
	if err != nil {
		return nil, fmt.Errorf("%s: read products: %w", s.d.Name, err)
	}
	defer rows.Close()

	out := make([]model.Product, 0, limit)
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ProductID, &p.Name, &p.Price); err != nil {
			return nil, fmt.Errorf("%s: scan product: %w", s.d.Name, err)
		}
		p.Name = cleanText(p.Name)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: read products: %w", s.d.Name, err)
	}
	return out, nil
}

// ReadProductAttributes implements storage.Source.
func (s *Source) ReadProductAttributes(ctx context.Context, productID int64) (model.ProductAttributes, bool, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		s.d.identList([]string{"store_id", "store_name", "supplier_id", "supplier_name"}),
		s.d.Ident(s.tables.Products), s.d.Ident("product_id"), s.d.placeholder(1))

	var a model.ProductAttributes
	err := s.db.QueryRowContext(ctx, q, productID).
		Scan(&a.Store.StoreID, &a.Store.Name, &a.Supplier.SupplierID, &a.Supplier.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ProductAttributes{}, false, nil
	}
	if err != nil {
		return model.ProductAttributes{}, false, fmt.Errorf("%s: product %d attributes: %w", s.d.Name, productID, err)
	}
	a.Store.Name, a.Supplier.Name = cleanText(a.Store.Name), cleanText(a.Supplier.Name)
	return a, true, nil
}

// DistinctTimeKeys implements storage.Source.
func (s *Source) DistinctTimeKeys(ctx context.Context) ([]model.TimeKey, error) {
	q := fmt.Sprintf("SELECT DISTINCT %s, %s FROM %s WHERE %s IS NOT NULL ORDER BY %s",
		s.d.Ident("time_id"), s.d.Ident("order_date"), s.d.Ident(s.tables.Transactions),
		s.d.Ident("order_date"), s.d.Ident("time_id"))

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%s: distinct time keys: %w", s.d.Name, err)
	}
	defer rows.Close()

	var out []model.TimeKey
	for rows.Next() {
		var (
			k    model.TimeKey
			date any
		)
		if err := rows.Scan(&k.TimeID, &date); err != nil {
			return nil, fmt.Errorf("%s: scan time key: %w", s.d.Name, err)
		}
		if k.OrderDate, err = toDate(date); err != nil {
			return nil, fmt.Errorf("%s: time key %d: %w", s.d.Name, k.TimeID, err)
		}
		out = append(out, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: distinct time keys: %w", s.d.Name, err)
	}
	return out, nil
}

// Close implements storage.Source.
func (s *Source) Close() error { return s.db.Close() }
