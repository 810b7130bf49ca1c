package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// SourceTables maps logical source tables to physical names.
type SourceTables struct {
	Transactions string `mapstructure:"transactions"`
	Customers    string `mapstructure:"customers"`
	Products     string `mapstructure:"products"`
}

// WarehouseTables maps logical warehouse tables to physical names.
type WarehouseTables struct {
	Product  string `mapstructure:"product"`
	Customer string `mapstructure:"customer"`
	Store    string `mapstructure:"store"`
	Supplier string `mapstructure:"supplier"`
	Time     string `mapstructure:"time"`
	Sales    string `mapstructure:"sales"`
}

// WithDefaults fills empty names with the default table names.
func (t SourceTables) WithDefaults() SourceTables {
	t.Transactions = orDefault(t.Transactions, "transactions")
	t.Customers = orDefault(t.Customers, "customers")
	t.Products = orDefault(t.Products, "products")
	return t
}

// WithDefaults fills empty names with the default table names.
func (t WarehouseTables) WithDefaults() WarehouseTables {
	t.Product = orDefault(t.Product, "product")
	t.Customer = orDefault(t.Customer, "customer")
	t.Store = orDefault(t.Store, "store")
	t.Supplier = orDefault(t.Supplier, "supplier")
	t.Time = orDefault(t.Time, "time_dim")
	t.Sales = orDefault(t.Sales, "sales")
	return t
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// SourceConfig carries what a backend needs to open a Source.
type SourceConfig struct {
	Kind   string
	DSN    string
	Tables SourceTables
}

// WarehouseConfig carries what a backend needs to open a Warehouse.
type WarehouseConfig struct {
	Kind   string
	DSN    string
	Tables WarehouseTables
}

// Backend bundles the two factories a storage kind provides.
type Backend struct {
	OpenSource    func(ctx context.Context, cfg SourceConfig) (Source, error)
	OpenWarehouse func(ctx context.Context, cfg WarehouseConfig) (Warehouse, error)
}

var (
	mu       sync.RWMutex
	backends = map[string]Backend{}
)

// Register registers (or replaces) the backend for kind. Backends call it
// from init.
func Register(kind string, b Backend) {
	mu.Lock()
	defer mu.Unlock()
	backends[kind] = b
}

// ListKinds returns a sorted snapshot of the registered kinds.
func ListKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(backends))
	for k := range backends {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func lookup(kind string) (Backend, error) {
	mu.RLock()
	b, ok := backends[kind]
	mu.RUnlock()
	if !ok {
		return Backend{}, fmt.Errorf("%w=%s", ErrUnsupportedKind, kind)
	}
	return b, nil
}

// OpenSource opens the Source of the configured kind.
func OpenSource(ctx context.Context, cfg SourceConfig) (Source, error) {
	b, err := lookup(cfg.Kind)
	if err != nil {
		return nil, err
	}
	if b.OpenSource == nil {
		return nil, fmt.Errorf("storage.kind=%s cannot serve as a source", cfg.Kind)
	}
	cfg.Tables = cfg.Tables.WithDefaults()
	return b.OpenSource(ctx, cfg)
}

// OpenWarehouse opens the Warehouse of the configured kind.
func OpenWarehouse(ctx context.Context, cfg WarehouseConfig) (Warehouse, error) {
	b, err := lookup(cfg.Kind)
	if err != nil {
		return nil, err
	}
	if b.OpenWarehouse == nil {
		return nil, fmt.Errorf("storage.kind=%s cannot serve as a warehouse", cfg.Kind)
	}
	cfg.Tables = cfg.Tables.WithDefaults()
	return b.OpenWarehouse(ctx, cfg)
}
