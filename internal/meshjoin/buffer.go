package meshjoin

import (
	"context"
	"fmt"

	"meshjoin/internal/model"
	"meshjoin/internal/storage"
)

// PartitionSource pages through one dimension table in key order.
type PartitionSource[V any] interface {
	CountRows(ctx context.Context) (int, error)
	ReadPartition(ctx context.Context, offset, limit int) ([]V, error)
}

// PartitionBuffer holds one bounded window of a dimension table in memory.
//
// Refresh replaces the window wholesale with the next capacity rows and moves
// a cyclic offset forward. The offset lives only here: a new buffer starts at
// the top of the table.
type PartitionBuffer[K comparable, V any] struct {
	name     string
	capacity int
	offset   int
	contents map[K]V

	src PartitionSource[V]
	key func(V) K

	refreshes int
}

// NewPartitionBuffer returns an empty buffer. key extracts the lookup key
// from a row.
func NewPartitionBuffer[K comparable, V any](name string, capacity int, src PartitionSource[V], key func(V) K) (*PartitionBuffer[K, V], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%s buffer: capacity must be > 0 (got %d)", name, capacity)
	}
	return &PartitionBuffer[K, V]{
		name:     name,
		capacity: capacity,
		contents: make(map[K]V, capacity),
		src:      src,
		key:      key,
	}, nil
}

// Name is the dimension the buffer holds.
func (b *PartitionBuffer[K, V]) Name() string { return b.name }

// Lookup consults the current window only.
func (b *PartitionBuffer[K, V]) Lookup(key K) (V, bool) {
	v, ok := b.contents[key]
	return v, ok
}

// Len is the number of rows in the current window.
func (b *PartitionBuffer[K, V]) Len() int { return len(b.contents) }

// Offset is where the next refresh starts reading.
func (b *PartitionBuffer[K, V]) Offset() int { return b.offset }

// Refreshes counts completed rotations.
func (b *PartitionBuffer[K, V]) Refreshes() int { return b.refreshes }

// Refresh loads capacity rows at the current offset, replaces the window and
// advances the offset. The row count is re-read on every rotation because the
// table may grow; once the offset reaches it, the next window starts at 0.
// An empty table leaves an empty window.
func (b *PartitionBuffer[K, V]) Refresh(ctx context.Context) error {
	rows, err := b.src.ReadPartition(ctx, b.offset, b.capacity)
	if err != nil {
		return fmt.Errorf("%s buffer: read partition at %d: %w", b.name, b.offset, err)
	}
	n, err := b.src.CountRows(ctx)
	if err != nil {
		return fmt.Errorf("%s buffer: count rows: %w", b.name, err)
	}

	clear(b.contents)
	for _, r := range rows {
		b.contents[b.key(r)] = r
	}

	b.offset += b.capacity
	if b.offset >= n {
		b.offset = 0
	}
	b.refreshes++
	return nil
}

// customerPartitions and productPartitions adapt a storage.Source to the two
// buffered dimensions.
type customerPartitions struct{ src storage.Source }

func (p customerPartitions) CountRows(ctx context.Context) (int, error) {
	return p.src.CountRows(ctx, storage.TableCustomers)
}

func (p customerPartitions) ReadPartition(ctx context.Context, offset, limit int) ([]model.Customer, error) {
	return p.src.ReadCustomers(ctx, offset, limit)
}

type productPartitions struct{ src storage.Source }

func (p productPartitions) CountRows(ctx context.Context) (int, error) {
	return p.src.CountRows(ctx, storage.TableProducts)
}

func (p productPartitions) ReadPartition(ctx context.Context, offset, limit int) ([]model.Product, error) {
	return p.src.ReadProducts(ctx, offset, limit)
}

// CustomerBuffer is the rotating window over the customer table.
type CustomerBuffer = PartitionBuffer[int64, model.Customer]

// ProductBuffer is the rotating window over the product table.
type ProductBuffer = PartitionBuffer[int64, model.Product]

// NewCustomerBuffer builds the customer window over src.
func NewCustomerBuffer(src storage.Source, capacity int) (*CustomerBuffer, error) {
	return NewPartitionBuffer(string(storage.DimCustomer), capacity, PartitionSource[model.Customer](customerPartitions{src}),
		func(c model.Customer) int64 { return c.CustomerID })
}

// NewProductBuffer builds the product window over src.
func NewProductBuffer(src storage.Source, capacity int) (*ProductBuffer, error) {
	return NewPartitionBuffer(string(storage.DimProduct), capacity, PartitionSource[model.Product](productPartitions{src}),
		func(p model.Product) int64 { return p.ProductID })
}
