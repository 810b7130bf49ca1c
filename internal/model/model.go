// Package model defines the row-level records that flow through the engine:
// source transactions, the two buffered dimensions (customer, product), the
// directly resolved dimensions (store, supplier), the derived time dimension,
// and the enriched sales fact written to the warehouse.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is one row of the source transaction stream.
//
// TimeID is supplied by the source system and links into the time dimension.
// It is not unique per order: orders on the same calendar day share it.
type Transaction struct {
	OrderID    int64
	OrderDate  time.Time
	ProductID  int64
	Quantity   int64
	CustomerID int64
	TimeID     int64
}

// Customer is a row of the customer dimension.
type Customer struct {
	CustomerID int64
	Name       string
	Gender     string
}

// Product is a row of the product dimension.
type Product struct {
	ProductID int64
	Name      string
	Price     decimal.Decimal
}

// Store is resolved per transaction from the product's source row.
type Store struct {
	StoreID int64
	Name    string
}

// Supplier is resolved per transaction from the product's source row.
type Supplier struct {
	SupplierID int64
	Name       string
}

// ProductAttributes carries the store and supplier columns of a product row.
type ProductAttributes struct {
	Store    Store
	Supplier Supplier
}

// TimeKey is a distinct (time_id, order_date) pair found in the source.
type TimeKey struct {
	TimeID    int64
	OrderDate time.Time
}

// TimeDimension is a row of the warehouse time table.
type TimeDimension struct {
	TimeID    int64
	OrderDate time.Time
	Day       int
	Week      int
	Month     int
	Year      int
	Quarter   int
}

// SalesFact is an enriched row of the warehouse sales table.
type SalesFact struct {
	OrderID    int64
	Quantity   int64
	CustomerID int64
	ProductID  int64
	StoreID    int64
	SupplierID int64
	TimeID     int64
	TotalSales decimal.Decimal
}

// FactKey names the column used to detect an existing fact row.
type FactKey string

const (
	FactKeyOrderID FactKey = "order_id"
	FactKeyTimeID  FactKey = "time_id"
)
