package meshjoin

import (
	"context"
	"fmt"

	"meshjoin/internal/storage"
)

// Upserter makes sure the dimension rows a fact references exist in the
// warehouse. Each insert is atomic insert-if-absent at the storage layer;
// keys already ensured in this run skip the round trip.
type Upserter struct {
	dw       storage.Warehouse
	seen     map[storage.Dimension]map[int64]struct{}
	inserted map[storage.Dimension]int64
}

// NewUpserter returns an upserter with an empty run cache.
func NewUpserter(dw storage.Warehouse) *Upserter {
	return &Upserter{
		dw:       dw,
		seen:     make(map[storage.Dimension]map[int64]struct{}),
		inserted: make(map[storage.Dimension]int64),
	}
}

// Inserted reports how many rows of dim this upserter created.
func (u *Upserter) Inserted(dim storage.Dimension) int64 { return u.inserted[dim] }

// Ensure makes the product, customer, store and supplier of e present.
func (u *Upserter) Ensure(ctx context.Context, e Enriched) error {
	steps := []struct {
		dim    storage.Dimension
		key    int64
		insert func() (bool, error)
	}{
		{storage.DimProduct, e.Product.ProductID, func() (bool, error) { return u.dw.InsertProductIfAbsent(ctx, e.Product) }},
		{storage.DimCustomer, e.Customer.CustomerID, func() (bool, error) { return u.dw.InsertCustomerIfAbsent(ctx, e.Customer) }},
		{storage.DimStore, e.Store.StoreID, func() (bool, error) { return u.dw.InsertStoreIfAbsent(ctx, e.Store) }},
		{storage.DimSupplier, e.Supplier.SupplierID, func() (bool, error) { return u.dw.InsertSupplierIfAbsent(ctx, e.Supplier) }},
	}
	for _, s := range steps {
		if err := u.ensure(s.dim, s.key, s.insert); err != nil {
			return err
		}
	}
	return nil
}

func (u *Upserter) ensure(dim storage.Dimension, key int64, insert func() (bool, error)) error {
	keys := u.seen[dim]
	if keys == nil {
		keys = make(map[int64]struct{})
		u.seen[dim] = keys
	}
	if _, ok := keys[key]; ok {
		return nil
	}

	created, err := insert()
	if err != nil {
		return fmt.Errorf("ensure %s %d: %w", dim, key, err)
	}
	if created {
		u.inserted[dim]++
	}
	keys[key] = struct{}{}
	return nil
}
