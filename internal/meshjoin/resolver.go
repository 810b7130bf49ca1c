package meshjoin

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"meshjoin/internal/metrics"
	"meshjoin/internal/model"
	"meshjoin/internal/storage"
)

// Enriched is a transaction joined with every dimension it references.
type Enriched struct {
	Customer model.Customer
	Product  model.Product
	Store    model.Store
	Supplier model.Supplier
	Fact     model.SalesFact
}

// SkipReason says why a transaction produced no fact.
type SkipReason string

const (
	SkipCustomer   SkipReason = "customer_not_buffered"
	SkipProduct    SkipReason = "product_not_buffered"
	SkipProductRow SkipReason = "product_row_missing"
)

// Resolver joins transactions against the two partition buffers.
type Resolver struct {
	job       string
	src       storage.Source
	customers *CustomerBuffer
	products  *ProductBuffer
	policy    RefreshPolicy
	log       *zap.Logger
}

// NewResolver wires a resolver. Under RefreshPerMiss it rotates a buffer on a
// miss; under RefreshPerSegment the caller rotates via Rotate.
func NewResolver(job string, src storage.Source, customers *CustomerBuffer, products *ProductBuffer, policy RefreshPolicy, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{job: job, src: src, customers: customers, products: products, policy: policy, log: log}
}

// Rotate refreshes both buffers once.
func (r *Resolver) Rotate(ctx context.Context) error {
	if err := r.customers.Refresh(ctx); err != nil {
		return err
	}
	metrics.RecordRefresh(r.job, r.customers.Name())
	if err := r.products.Refresh(ctx); err != nil {
		return err
	}
	metrics.RecordRefresh(r.job, r.products.Name())
	return nil
}

// Refreshes is the total number of rotations across both buffers.
func (r *Resolver) Refreshes() int {
	return r.customers.Refreshes() + r.products.Refreshes()
}

// Resolve enriches t. ok is false when t must be skipped: its customer or
// product is not in the current window (after at most one rotation each), or
// the product's source row is gone. Both windows are consulted, and rotated
// on a miss, before the skip decision. A skip is not an error.
func (r *Resolver) Resolve(ctx context.Context, t model.Transaction) (Enriched, bool, error) {
	c, cok, err := lookup(ctx, r, r.customers, t.CustomerID)
	if err != nil {
		return Enriched{}, false, err
	}
	p, pok, err := lookup(ctx, r, r.products, t.ProductID)
	if err != nil {
		return Enriched{}, false, err
	}
	if !cok {
		r.skip(t, SkipCustomer)
		return Enriched{}, false, nil
	}
	if !pok {
		r.skip(t, SkipProduct)
		return Enriched{}, false, nil
	}

	attrs, ok, err := r.src.ReadProductAttributes(ctx, t.ProductID)
	if err != nil {
		return Enriched{}, false, err
	}
	if !ok {
		r.skip(t, SkipProductRow)
		return Enriched{}, false, nil
	}

	return Enriched{
		Customer: c,
		Product:  p,
		Store:    attrs.Store,
		Supplier: attrs.Supplier,
		Fact: model.SalesFact{
			OrderID:    t.OrderID,
			Quantity:   t.Quantity,
			CustomerID: c.CustomerID,
			ProductID:  p.ProductID,
			StoreID:    attrs.Store.StoreID,
			SupplierID: attrs.Supplier.SupplierID,
			TimeID:     t.TimeID,
			TotalSales: p.Price.Mul(decimal.NewFromInt(t.Quantity)),
		},
	}, true, nil
}

// lookup consults b and, under RefreshPerMiss, rotates once and retries.
func lookup[V any](ctx context.Context, r *Resolver, b *PartitionBuffer[int64, V], key int64) (V, bool, error) {
	if v, ok := b.Lookup(key); ok || r.policy != RefreshPerMiss {
		return v, ok, nil
	}
	if err := b.Refresh(ctx); err != nil {
		var zero V
		return zero, false, err
	}
	metrics.RecordRefresh(r.job, b.Name())
	v, ok := b.Lookup(key)
	return v, ok, nil
}

func (r *Resolver) skip(t model.Transaction, why SkipReason) {
	r.log.Debug("transaction skipped",
		zap.Int64("order_id", t.OrderID),
		zap.Int64("customer_id", t.CustomerID),
		zap.Int64("product_id", t.ProductID),
		zap.String("reason", string(why)),
	)
}
