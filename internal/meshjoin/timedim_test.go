package meshjoin

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshjoin/internal/model"
)

func TestDeriveTimeDimension(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		date time.Time
		want model.TimeDimension
	}{
		"thursday of iso week 7": {
			day(2024, time.February, 15),
			model.TimeDimension{Day: 15, Week: 7, Month: 2, Year: 2024, Quarter: 1},
		},
		"new year in previous iso year": {
			day(2021, time.January, 1),
			model.TimeDimension{Day: 1, Week: 53, Month: 1, Year: 2021, Quarter: 1},
		},
		"december in next iso year": {
			day(2024, time.December, 30),
			model.TimeDimension{Day: 30, Week: 1, Month: 12, Year: 2024, Quarter: 4},
		},
		"start of july": {
			day(2023, time.July, 1),
			model.TimeDimension{Day: 1, Week: 26, Month: 7, Year: 2023, Quarter: 3},
		},
		"end of march": {
			day(2023, time.March, 31),
			model.TimeDimension{Day: 31, Week: 13, Month: 3, Year: 2023, Quarter: 1},
		},
		"start of april": {
			day(2023, time.April, 1),
			model.TimeDimension{Day: 1, Week: 13, Month: 4, Year: 2023, Quarter: 2},
		},
	}
	for name, c := range cases {
		c.want.TimeID = 42
		c.want.OrderDate = c.date
		assert.Equal(t, c.want, DeriveTimeDimension(model.TimeKey{TimeID: 42, OrderDate: c.date}), name)
	}
}

func TestEnsureTimeDimension_IsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	src := &fakeSource{txns: []model.Transaction{
		txn(1, 1, 10, 1, 7, day(2024, time.February, 15)),
		txn(2, 1, 10, 1, 7, day(2024, time.February, 15)),
		txn(3, 1, 10, 1, 8, day(2024, time.February, 16)),
		txn(4, 1, 10, 1, 9, time.Time{}), // NULL order date
	}}
	dw := newFakeWarehouse()
	td := NewTimeDimensionDeriver(src, dw)

	n, err := td.EnsureTimeDimension(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Len(t, dw.times, 2)
	assert.Equal(t, 7, dw.times[8].Week)
	assert.NotContains(t, dw.times, int64(9))

	n, err = td.EnsureTimeDimension(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.Equal(t, 1, dw.timeBatches, "known keys do not reach the warehouse")

	// A fresh run against the same warehouse writes nothing new either.
	n, err = NewTimeDimensionDeriver(src, dw).EnsureTimeDimension(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.Len(t, dw.times, 2)
}

func TestEnsureTimeDimension_PicksUpNewKeys(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	src := &fakeSource{txns: []model.Transaction{txn(1, 1, 10, 1, 7, day(2024, time.February, 15))}}
	dw := newFakeWarehouse()
	td := NewTimeDimensionDeriver(src, dw)

	_, err := td.EnsureTimeDimension(ctx)
	require.NoError(t, err)

	src.txns = append(src.txns, txn(2, 1, 10, 1, 30, day(2024, time.March, 1)))
	n, err := td.EnsureTimeDimension(ctx, 7, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, dw.times[30].Quarter)
	assert.Equal(t, 3, dw.times[30].Month)
}

func TestEnsureTimeDimension_ScansOnlyForUnknownIDs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	src := &fakeSource{txns: []model.Transaction{
		txn(1, 1, 10, 1, 7, day(2024, time.February, 15)),
		txn(2, 1, 10, 1, 8, day(2024, time.February, 16)),
	}}
	dw := newFakeWarehouse()
	td := NewTimeDimensionDeriver(src, dw)

	// The first call always scans, whatever is asked for.
	n, err := td.EnsureTimeDimension(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 1, td.Scans())

	for i := 0; i < 3; i++ {
		n, err = td.EnsureTimeDimension(ctx, 7, 8)
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
	}
	assert.Equal(t, 1, td.Scans(), "known ids need no scan")

	n, err = td.EnsureTimeDimension(ctx, 7, 99)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.Equal(t, 2, td.Scans())
}
