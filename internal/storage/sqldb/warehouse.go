package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"meshjoin/internal/model"
	"meshjoin/internal/storage"
)

var (
	productCols  = []string{"product_id", "product_name", "product_price"}
	customerCols = []string{"customer_id", "customer_name", "gender"}
	storeCols    = []string{"store_id", "store_name"}
	supplierCols = []string{"supplier_id", "supplier_name"}
	timeCols     = []string{"time_id", "order_date", "day", "week", "month", "year", "quarter"}
	salesCols    = []string{"order_id", "quantity", "customer_id", "product_id", "store_id", "supplier_id", "total_sales", "time_id"}
)

// Warehouse is a database/sql implementation of storage.Warehouse.
type Warehouse struct {
	db     *sql.DB
	d      Dialect
	tables storage.WarehouseTables
}

var _ storage.Warehouse = (*Warehouse)(nil)

// NewWarehouse wraps an open database. The Warehouse owns db and closes it.
func NewWarehouse(db *sql.DB, d Dialect, tables storage.WarehouseTables) *Warehouse {
	return &Warehouse{db: db, d: d, tables: tables.WithDefaults()}
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (w *Warehouse) dimension(dim storage.Dimension) (table, key string, err error) {
	switch dim {
	case storage.DimProduct:
		return w.tables.Product, "product_id", nil
	case storage.DimCustomer:
		return w.tables.Customer, "customer_id", nil
	case storage.DimStore:
		return w.tables.Store, "store_id", nil
	case storage.DimSupplier:
		return w.tables.Supplier, "supplier_id", nil
	case storage.DimTime:
		return w.tables.Time, "time_id", nil
	}
	return "", "", fmt.Errorf("%s: unknown dimension %q", w.d.Name, dim)
}

// Exists implements storage.Warehouse.
func (w *Warehouse) Exists(ctx context.Context, dim storage.Dimension, key int64) (bool, error) {
	table, col, err := w.dimension(dim)
	if err != nil {
		return false, err
	}
	return w.exists(ctx, table, col, key)
}

func (w *Warehouse) exists(ctx context.Context, table, col string, key int64) (bool, error) {
	q := fmt.Sprintf("SELECT 1 FROM %s WHERE %s = %s", w.d.Ident(table), w.d.Ident(col), w.d.placeholder(1))
	var one int
	err := w.db.QueryRowContext(ctx, q, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: exists %s.%s=%d: %w", w.d.Name, table, col, key, err)
	}
	return true, nil
}

func (w *Warehouse) insertIfAbsent(ctx context.Context, ex execer, table string, cols []string, args ...any) (bool, error) {
	res, err := ex.ExecContext(ctx, w.d.insertIfAbsent(w.d, table, cols, 0), args...)
	if err != nil {
		return false, fmt.Errorf("%s: insert into %s: %w", w.d.Name, table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: insert into %s: rows affected: %w", w.d.Name, table, err)
	}
	return n > 0, nil
}

// InsertProductIfAbsent implements storage.Warehouse.
func (w *Warehouse) InsertProductIfAbsent(ctx context.Context, p model.Product) (bool, error) {
	return w.insertIfAbsent(ctx, w.db, w.tables.Product, productCols, p.ProductID, p.Name, p.Price)
}

// InsertCustomerIfAbsent implements storage.Warehouse.
func (w *Warehouse) InsertCustomerIfAbsent(ctx context.Context, c model.Customer) (bool, error) {
	return w.insertIfAbsent(ctx, w.db, w.tables.Customer, customerCols, c.CustomerID, c.Name, c.Gender)
}

// InsertStoreIfAbsent implements storage.Warehouse.
func (w *Warehouse) InsertStoreIfAbsent(ctx context.Context, s model.Store) (bool, error) {
	return w.insertIfAbsent(ctx, w.db, w.tables.Store, storeCols, s.StoreID, s.Name)
}

// InsertSupplierIfAbsent implements storage.Warehouse.
func (w *Warehouse) InsertSupplierIfAbsent(ctx context.Context, s model.Supplier) (bool, error) {
	return w.insertIfAbsent(ctx, w.db, w.tables.Supplier, supplierCols, s.SupplierID, s.Name)
}

// InsertTimeDimensionBatch implements storage.Warehouse. All rows go through
// one transaction.
func (w *Warehouse) InsertTimeDimensionBatch(ctx context.Context, rows []model.TimeDimension) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	var inserted int64
	err := w.inTx(ctx, func(tx *sql.Tx) error {
		for _, r := range rows {
			ok, err := w.insertIfAbsent(ctx, tx, w.tables.Time, timeCols,
				r.TimeID, r.OrderDate.Format(dateLayout), r.Day, r.Week, r.Month, r.Year, r.Quarter)
			if err != nil {
				return err
			}
			if ok {
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// FactExists implements storage.Warehouse.
func (w *Warehouse) FactExists(ctx context.Context, key model.FactKey, value int64) (bool, error) {
	switch key {
	case model.FactKeyOrderID, model.FactKeyTimeID:
	default:
		return false, fmt.Errorf("%s: unknown fact key %q", w.d.Name, key)
	}
	return w.exists(ctx, w.tables.Sales, string(key), value)
}

// InsertFactBatch implements storage.Warehouse using a single transaction and
// one prepared statement executed per row.
func (w *Warehouse) InsertFactBatch(ctx context.Context, facts []model.SalesFact, skipExistingOrders bool) (int64, error) {
	if len(facts) == 0 {
		return 0, nil
	}

	stmtSQL := w.d.insertSQL(w.tables.Sales, salesCols)
	if skipExistingOrders {
		stmtSQL = w.d.insertIfAbsent(w.d, w.tables.Sales, salesCols, 0)
	}

	var inserted int64
	err := w.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, stmtSQL)
		if err != nil {
			return fmt.Errorf("%s: prepare fact insert: %w", w.d.Name, err)
		}
		defer stmt.Close()

		for _, f := range facts {
			res, err := stmt.ExecContext(ctx,
				f.OrderID, f.Quantity, f.CustomerID, f.ProductID, f.StoreID, f.SupplierID, f.TotalSales, f.TimeID)
			if err != nil {
				return fmt.Errorf("%s: insert fact order %d: %w", w.d.Name, f.OrderID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("%s: insert fact order %d: rows affected: %w", w.d.Name, f.OrderID, err)
			}
			inserted += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func (w *Warehouse) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin tx: %w", w.d.Name, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", w.d.Name, err)
	}
	return nil
}

// Close implements storage.Warehouse.
func (w *Warehouse) Close() error { return w.db.Close() }
