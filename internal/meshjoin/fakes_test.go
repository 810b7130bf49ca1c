package meshjoin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"meshjoin/internal/model"
	"meshjoin/internal/storage"
)

/*
In-memory source and warehouse used by the engine tests.
*/

type partitionRead struct {
	table         storage.Table
	offset, limit int
}

type fakeProduct struct {
	model.Product
	attrs model.ProductAttributes
}

type fakeSource struct {
	customers []model.Customer // key order
	products  []fakeProduct    // key order
	txns      []model.Transaction

	// missingAttrs lists products whose source row vanishes for point lookups.
	missingAttrs map[int64]bool
	// attrsErr fails point lookups of the listed products.
	attrsErr map[int64]error

	timeKeyScans int

	reads     []partitionRead
	failAfter int // fail the cursor after this many rows when > 0
	cursorErr error
	closed    bool
}

var _ storage.Source = (*fakeSource)(nil)

func (s *fakeSource) CountRows(_ context.Context, t storage.Table) (int, error) {
	switch t {
	case storage.TableCustomers:
		return len(s.customers), nil
	case storage.TableProducts:
		return len(s.products), nil
	case storage.TableTransactions:
		return len(s.txns), nil
	}
	return 0, fmt.Errorf("unknown table %q", t)
}

func (s *fakeSource) OpenTransactions(context.Context) (storage.TransactionCursor, error) {
	return &sliceCursor{src: s}, nil
}

func window[T any](rows []T, offset, limit int) []T {
	if offset >= len(rows) {
		return nil
	}
	end := min(offset+limit, len(rows))
	return append([]T(nil), rows[offset:end]...)
}

func (s *fakeSource) ReadCustomers(_ context.Context, offset, limit int) ([]model.Customer, error) {
	s.reads = append(s.reads, partitionRead{storage.TableCustomers, offset, limit})
	return window(s.customers, offset, limit), nil
}

func (s *fakeSource) ReadProducts(_ context.Context, offset, limit int) ([]model.Product, error) {
	s.reads = append(s.reads, partitionRead{storage.TableProducts, offset, limit})
	var out []model.Product
	for _, p := range window(s.products, offset, limit) {
		out = append(out, p.Product)
	}
	return out, nil
}

func (s *fakeSource) ReadProductAttributes(_ context.Context, id int64) (model.ProductAttributes, bool, error) {
	if err := s.attrsErr[id]; err != nil {
		return model.ProductAttributes{}, false, err
	}
	if s.missingAttrs[id] {
		return model.ProductAttributes{}, false, nil
	}
	for _, p := range s.products {
		if p.ProductID == id {
			return p.attrs, true, nil
		}
	}
	return model.ProductAttributes{}, false, nil
}

func (s *fakeSource) DistinctTimeKeys(context.Context) ([]model.TimeKey, error) {
	s.timeKeyScans++
	seen := map[model.TimeKey]bool{}
	var out []model.TimeKey
	for _, t := range s.txns {
		k := model.TimeKey{TimeID: t.TimeID, OrderDate: t.OrderDate}
		if t.OrderDate.IsZero() || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TimeID < out[j].TimeID })
	return out, nil
}

func (s *fakeSource) Close() error { return nil }

type sliceCursor struct {
	src *fakeSource
	pos int
}

func (c *sliceCursor) Next(context.Context) (model.Transaction, error) {
	if c.src.failAfter > 0 && c.pos >= c.src.failAfter {
		return model.Transaction{}, c.src.cursorErr
	}
	if c.pos >= len(c.src.txns) {
		return model.Transaction{}, io.EOF
	}
	t := c.src.txns[c.pos]
	c.pos++
	return t, nil
}

func (c *sliceCursor) Close() error {
	c.src.closed = true
	return nil
}

type fakeWarehouse struct {
	products  map[int64]model.Product
	customers map[int64]model.Customer
	stores    map[int64]model.Store
	suppliers map[int64]model.Supplier
	times     map[int64]model.TimeDimension
	facts     []model.SalesFact

	insertCalls map[storage.Dimension]int
	timeBatches int
	factBatches [][]model.SalesFact
	failFacts   error
}

var _ storage.Warehouse = (*fakeWarehouse)(nil)

func newFakeWarehouse() *fakeWarehouse {
	return &fakeWarehouse{
		products:    map[int64]model.Product{},
		customers:   map[int64]model.Customer{},
		stores:      map[int64]model.Store{},
		suppliers:   map[int64]model.Supplier{},
		times:       map[int64]model.TimeDimension{},
		insertCalls: map[storage.Dimension]int{},
	}
}

func (w *fakeWarehouse) Exists(_ context.Context, dim storage.Dimension, key int64) (bool, error) {
	var ok bool
	switch dim {
	case storage.DimProduct:
		_, ok = w.products[key]
	case storage.DimCustomer:
		_, ok = w.customers[key]
	case storage.DimStore:
		_, ok = w.stores[key]
	case storage.DimSupplier:
		_, ok = w.suppliers[key]
	case storage.DimTime:
		_, ok = w.times[key]
	default:
		return false, fmt.Errorf("unknown dimension %q", dim)
	}
	return ok, nil
}

func insertIfAbsent[V any](m map[int64]V, key int64, v V) bool {
	if _, ok := m[key]; ok {
		return false
	}
	m[key] = v
	return true
}

func (w *fakeWarehouse) InsertProductIfAbsent(_ context.Context, p model.Product) (bool, error) {
	w.insertCalls[storage.DimProduct]++
	return insertIfAbsent(w.products, p.ProductID, p), nil
}

func (w *fakeWarehouse) InsertCustomerIfAbsent(_ context.Context, c model.Customer) (bool, error) {
	w.insertCalls[storage.DimCustomer]++
	return insertIfAbsent(w.customers, c.CustomerID, c), nil
}

func (w *fakeWarehouse) InsertStoreIfAbsent(_ context.Context, s model.Store) (bool, error) {
	w.insertCalls[storage.DimStore]++
	return insertIfAbsent(w.stores, s.StoreID, s), nil
}

func (w *fakeWarehouse) InsertSupplierIfAbsent(_ context.Context, s model.Supplier) (bool, error) {
	w.insertCalls[storage.DimSupplier]++
	return insertIfAbsent(w.suppliers, s.SupplierID, s), nil
}

func (w *fakeWarehouse) InsertTimeDimensionBatch(_ context.Context, rows []model.TimeDimension) (int64, error) {
	w.timeBatches++
	var n int64
	for _, r := range rows {
		if insertIfAbsent(w.times, r.TimeID, r) {
			n++
		}
	}
	return n, nil
}

func (w *fakeWarehouse) FactExists(_ context.Context, key model.FactKey, value int64) (bool, error) {
	for _, f := range w.facts {
		switch key {
		case model.FactKeyOrderID:
			if f.OrderID == value {
				return true, nil
			}
		case model.FactKeyTimeID:
			if f.TimeID == value {
				return true, nil
			}
		default:
			return false, fmt.Errorf("unknown fact key %q", key)
		}
	}
	return false, nil
}

// InsertFactBatch is all-or-nothing and enforces the foreign keys of the
// sales table like a real warehouse would.
func (w *fakeWarehouse) InsertFactBatch(ctx context.Context, facts []model.SalesFact, skipExistingOrders bool) (int64, error) {
	w.factBatches = append(w.factBatches, append([]model.SalesFact(nil), facts...))
	if w.failFacts != nil {
		return 0, w.failFacts
	}

	var add []model.SalesFact
	for _, f := range facts {
		if err := w.checkRefs(f); err != nil {
			return 0, err
		}
		exists, _ := w.FactExists(ctx, model.FactKeyOrderID, f.OrderID)
		if exists {
			if skipExistingOrders {
				continue
			}
			return 0, fmt.Errorf("duplicate order_id %d", f.OrderID)
		}
		add = append(add, f)
	}
	w.facts = append(w.facts, add...)
	return int64(len(add)), nil
}

func (w *fakeWarehouse) checkRefs(f model.SalesFact) error {
	_, p := w.products[f.ProductID]
	_, c := w.customers[f.CustomerID]
	_, s := w.stores[f.StoreID]
	_, sp := w.suppliers[f.SupplierID]
	_, t := w.times[f.TimeID]
	if !p || !c || !s || !sp || !t {
		return errors.New("foreign key constraint failed")
	}
	return nil
}

func (w *fakeWarehouse) Close() error { return nil }

/*
Fixture builders
*/

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func customers(ids ...int64) []model.Customer {
	out := make([]model.Customer, len(ids))
	for i, id := range ids {
		out[i] = model.Customer{CustomerID: id, Name: fmt.Sprintf("customer-%d", id), Gender: "F"}
	}
	return out
}

func product(id int64, price string) fakeProduct {
	return fakeProduct{
		Product: model.Product{ProductID: id, Name: fmt.Sprintf("product-%d", id), Price: decimal.RequireFromString(price)},
		attrs: model.ProductAttributes{
			Store:    model.Store{StoreID: 100 + id, Name: fmt.Sprintf("store-%d", 100+id)},
			Supplier: model.Supplier{SupplierID: 200 + id, Name: fmt.Sprintf("supplier-%d", 200+id)},
		},
	}
}

func txn(order, customer, productID, qty, timeID int64, date time.Time) model.Transaction {
	return model.Transaction{
		OrderID: order, OrderDate: date, ProductID: productID, Quantity: qty, CustomerID: customer, TimeID: timeID,
	}
}
