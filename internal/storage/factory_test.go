package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWarehouse embeds the interface; only Close is exercised here.
type fakeWarehouse struct {
	Warehouse
	tables WarehouseTables
}

func (f *fakeWarehouse) Close() error { return nil }

func TestRegisterAndOpenWarehouse(t *testing.T) {
	t.Parallel()

	Register("fake-wh", Backend{
		OpenWarehouse: func(_ context.Context, cfg WarehouseConfig) (Warehouse, error) {
			return &fakeWarehouse{tables: cfg.Tables}, nil
		},
	})

	wh, err := OpenWarehouse(context.Background(), WarehouseConfig{Kind: "fake-wh", Tables: WarehouseTables{Sales: "fact_sales"}})
	require.NoError(t, err)

	tables := wh.(*fakeWarehouse).tables
	assert.Equal(t, "fact_sales", tables.Sales)
	assert.Equal(t, "time_dim", tables.Time, "defaults are filled in")
	assert.Contains(t, ListKinds(), "fake-wh")
}

func TestOpen_UnsupportedKind(t *testing.T) {
	t.Parallel()

	_, err := OpenSource(context.Background(), SourceConfig{Kind: "does-not-exist"})
	require.ErrorIs(t, err, ErrUnsupportedKind)
	assert.Equal(t, "unsupported storage.kind=does-not-exist", err.Error())
}

func TestOpen_MissingFactory(t *testing.T) {
	t.Parallel()

	Register("warehouse-only", Backend{
		OpenWarehouse: func(context.Context, WarehouseConfig) (Warehouse, error) { return &fakeWarehouse{}, nil },
	})
	_, err := OpenSource(context.Background(), SourceConfig{Kind: "warehouse-only"})
	require.Error(t, err)
}

func TestRegister_Override(t *testing.T) {
	t.Parallel()

	calls := 0
	Register("override", Backend{OpenWarehouse: func(context.Context, WarehouseConfig) (Warehouse, error) {
		calls++
		return &fakeWarehouse{}, nil
	}})
	Register("override", Backend{OpenWarehouse: func(context.Context, WarehouseConfig) (Warehouse, error) {
		calls += 10
		return &fakeWarehouse{}, nil
	}})

	_, err := OpenWarehouse(context.Background(), WarehouseConfig{Kind: "override"})
	require.NoError(t, err)
	assert.Equal(t, 10, calls)
}

func TestOpen_FactoryErrorsBubbleUp(t *testing.T) {
	t.Parallel()

	want := errors.New("boom")
	Register("errkind", Backend{OpenSource: func(context.Context, SourceConfig) (Source, error) { return nil, want }})

	_, err := OpenSource(context.Background(), SourceConfig{Kind: "errkind"})
	assert.ErrorIs(t, err, want)
}

func TestListKinds_Snapshot(t *testing.T) {
	t.Parallel()

	Register("snap", Backend{})
	a := ListKinds()
	require.NotEmpty(t, a)
	a[0] = "mutated"
	assert.NotContains(t, ListKinds(), "mutated")
}
