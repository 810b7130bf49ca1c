// Package storage contains the storage-agnostic contracts of the engine: the
// row source it reads transactions and dimension partitions from, and the
// warehouse sink it loads the star schema into.
//
// Concrete backends (mysql, postgres, sqlite, mssql) live in subpackages and
// register themselves with the factory in this package from their init
// functions; see storage/all.
package storage

import (
	"context"
	"errors"

	"meshjoin/internal/model"
)

// Table identifies a logical source table.
type Table string

const (
	TableTransactions Table = "transactions"
	TableCustomers    Table = "customers"
	TableProducts     Table = "products"
)

// Dimension identifies a logical warehouse dimension table.
type Dimension string

const (
	DimProduct  Dimension = "product"
	DimCustomer Dimension = "customer"
	DimStore    Dimension = "store"
	DimSupplier Dimension = "supplier"
	DimTime     Dimension = "time"
)

// ErrUnsupportedKind is returned by the factory for unregistered backends.
var ErrUnsupportedKind = errors.New("unsupported storage.kind")

// TransactionCursor is a forward-only cursor over the transaction stream.
type TransactionCursor interface {
	// Next returns the next transaction, or io.EOF once the stream is exhausted.
	Next(ctx context.Context) (model.Transaction, error)
	Close() error
}

// Source is the row source adapter over the operational database.
type Source interface {
	// CountRows returns the current row count of a source table.
	CountRows(ctx context.Context, t Table) (int, error)

	// OpenTransactions opens a cursor over the whole transaction stream.
	OpenTransactions(ctx context.Context) (TransactionCursor, error)

	// ReadCustomers and ReadProducts page through a dimension table in key
	// order (offset/limit pagination).
	ReadCustomers(ctx context.Context, offset, limit int) ([]model.Customer, error)
	ReadProducts(ctx context.Context, offset, limit int) ([]model.Product, error)

	// ReadProductAttributes is a point lookup of the store and supplier
	// columns of one product row. ok is false when the product row is gone.
	ReadProductAttributes(ctx context.Context, productID int64) (attrs model.ProductAttributes, ok bool, err error)

	// DistinctTimeKeys returns every distinct (time_id, order_date) pair of
	// the transaction table with a non-null order_date.
	DistinctTimeKeys(ctx context.Context) ([]model.TimeKey, error)

	Close() error
}

// Warehouse is the sink for the star schema.
//
// The Insert*IfAbsent methods are atomic insert-if-absent primitives: they
// report whether a row was inserted and never fail on an existing key.
type Warehouse interface {
	Exists(ctx context.Context, dim Dimension, key int64) (bool, error)

	InsertProductIfAbsent(ctx context.Context, p model.Product) (bool, error)
	InsertCustomerIfAbsent(ctx context.Context, c model.Customer) (bool, error)
	InsertStoreIfAbsent(ctx context.Context, s model.Store) (bool, error)
	InsertSupplierIfAbsent(ctx context.Context, s model.Supplier) (bool, error)

	// InsertTimeDimensionBatch inserts the rows whose time_id is absent and
	// returns how many were inserted.
	InsertTimeDimensionBatch(ctx context.Context, rows []model.TimeDimension) (int64, error)

	// FactExists reports whether any sales row has the given key value.
	FactExists(ctx context.Context, key model.FactKey, value int64) (bool, error)

	// InsertFactBatch writes facts as one write operation. With
	// skipExistingOrders, rows whose order_id is already present are skipped
	// atomically instead of failing the batch.
	InsertFactBatch(ctx context.Context, facts []model.SalesFact, skipExistingOrders bool) (int64, error)

	Close() error
}

// SchemaBootstrapper is implemented by backends that can create their tables.
type SchemaBootstrapper interface {
	EnsureSchema(ctx context.Context) error
}
