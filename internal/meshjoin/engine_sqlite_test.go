package meshjoin

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshjoin/internal/storage"
	"meshjoin/internal/storage/sqldb"
	"meshjoin/internal/storage/sqlite"
)

// End-to-end run against two SQLite files: one customer, one product, one
// order.
func TestEngine_SQLiteEndToEnd(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()

	srcDB, err := sqlite.Open(ctx, filepath.Join(dir, "source.db"))
	require.NoError(t, err)
	src := sqldb.NewSource(srcDB, sqldb.SQLite, storage.SourceTables{})
	defer src.Close()

	dwDB, err := sqlite.Open(ctx, filepath.Join(dir, "warehouse.db"))
	require.NoError(t, err)
	dw := sqldb.NewWarehouse(dwDB, sqldb.SQLite, storage.WarehouseTables{})
	defer dw.Close()

	require.NoError(t, src.EnsureSchema(ctx))
	require.NoError(t, dw.EnsureSchema(ctx))

	for _, q := range []string{
		`INSERT INTO customers VALUES (1, 'Alice', 'F')`,
		`INSERT INTO products VALUES (10, 'Widget', '9.50', 100, 'Main St', 200, 'Acme')`,
		`INSERT INTO transactions VALUES (500, '2024-02-15', 10, 3, 1, 20240215)`,
	} {
		_, err := srcDB.ExecContext(ctx, q)
		require.NoError(t, err, q)
	}

	e, err := New(src, dw, Config{}, nil)
	require.NoError(t, err)
	stats, err := e.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Inserted)

	for _, dim := range []storage.Dimension{storage.DimProduct, storage.DimCustomer} {
		key := map[storage.Dimension]int64{storage.DimProduct: 10, storage.DimCustomer: 1}[dim]
		ok, err := dw.Exists(ctx, dim, key)
		require.NoError(t, err)
		assert.True(t, ok, "%s %d", dim, key)
	}

	var (
		orderID, timeID int64
		total           decimal.Decimal
	)
	require.NoError(t, dwDB.QueryRowContext(ctx, `SELECT order_id, total_sales, time_id FROM sales`).Scan(&orderID, &total, &timeID))
	assert.Equal(t, int64(500), orderID)
	assert.True(t, decimal.RequireFromString("28.50").Equal(total), total.String())

	var day, week, month, year, quarter int
	require.NoError(t, dwDB.QueryRowContext(ctx,
		`SELECT day, week, month, year, quarter FROM time_dim WHERE time_id = ?`, timeID).
		Scan(&day, &week, &month, &year, &quarter))
	assert.Equal(t, []int{15, 7, 2, 2024, 1}, []int{day, week, month, year, quarter})

	// A second run loads nothing new.
	stats, err = e.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Inserted)
	var facts int
	require.NoError(t, dwDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM sales`).Scan(&facts))
	assert.Equal(t, 1, facts)
}
