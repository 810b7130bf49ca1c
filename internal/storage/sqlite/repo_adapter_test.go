package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"meshjoin/internal/model"
	"meshjoin/internal/storage"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithPragmas(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in, want string
	}{
		{"etl.db", "file:etl.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"},
		{"file:etl.db?cache=shared", "file:etl.db?cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"},
		{"file:etl.db?_pragma=foreign_keys(1)", "file:etl.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, withPragmas(c.in), c.in)
	}
}

func TestOpen_EmptyDSN(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), "  ")
	require.Error(t, err)
}

func TestRegisteredAndEnforcesForeignKeys(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	assert.Contains(t, storage.ListKinds(), "sqlite")

	wh, err := storage.OpenWarehouse(ctx, storage.WarehouseConfig{
		Kind: "sqlite",
		DSN:  filepath.Join(t.TempDir(), "dw.db"),
	})
	require.NoError(t, err)
	defer wh.Close()

	boot, ok := wh.(storage.SchemaBootstrapper)
	require.True(t, ok)
	require.NoError(t, boot.EnsureSchema(ctx))

	// A fact that references no dimension rows must be rejected.
	_, err = wh.InsertFactBatch(ctx, []model.SalesFact{{
		OrderID: 1, Quantity: 1, CustomerID: 7, ProductID: 8, StoreID: 9, SupplierID: 10, TimeID: 11,
		TotalSales: decimal.NewFromInt(1),
	}}, false)
	require.Error(t, err)

	db, err := Open(ctx, filepath.Join(t.TempDir(), "fk.db"))
	require.NoError(t, err)
	defer db.Close()
	var fk int
	require.NoError(t, db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)
}
