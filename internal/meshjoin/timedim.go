package meshjoin

import (
	"context"
	"fmt"

	"meshjoin/internal/model"
	"meshjoin/internal/storage"
)

// DeriveTimeDimension computes the calendar attributes of k.OrderDate. Week
// is the ISO 8601 week (weeks start on Monday, week 1 holds the first
// Thursday), so early-January dates can fall in week 52 or 53.
func DeriveTimeDimension(k model.TimeKey) model.TimeDimension {
	d := k.OrderDate
	_, week := d.ISOWeek()
	month := int(d.Month())
	return model.TimeDimension{
		TimeID:    k.TimeID,
		OrderDate: d,
		Day:       d.Day(),
		Week:      week,
		Month:     month,
		Year:      d.Year(),
		Quarter:   (month-1)/3 + 1,
	}
}

// TimeDimensionDeriver keeps the warehouse time table in step with the
// source. It remembers which time ids it has already ensured in this run.
type TimeDimensionDeriver struct {
	src     storage.Source
	dw      storage.Warehouse
	known   map[int64]struct{}
	scanned bool
	scans   int
}

// NewTimeDimensionDeriver returns a deriver with an empty run cache.
func NewTimeDimensionDeriver(src storage.Source, dw storage.Warehouse) *TimeDimensionDeriver {
	return &TimeDimensionDeriver{src: src, dw: dw, known: make(map[int64]struct{})}
}

// Scans counts the distinct-date scans of the source.
func (t *TimeDimensionDeriver) Scans() int { return t.scans }

// EnsureTimeDimension reads every distinct (time_id, order_date) pair from the
// source, derives the rows not yet ensured, and writes them in one batch with
// insert-if-absent semantics. It returns the number of rows inserted. When a
// time id appears with several dates, the first pair wins.
//
// need lists the time ids the caller is about to reference. After the first
// scan of the run, the source is only scanned again when one of them is not
// yet known.
func (t *TimeDimensionDeriver) EnsureTimeDimension(ctx context.Context, need ...int64) (int64, error) {
	if t.scanned && t.allKnown(need) {
		return 0, nil
	}
	keys, err := t.src.DistinctTimeKeys(ctx)
	if err != nil {
		return 0, fmt.Errorf("time dimension: %w", err)
	}
	t.scans++

	var rows []model.TimeDimension
	batch := make(map[int64]struct{})
	for _, k := range keys {
		if _, ok := t.known[k.TimeID]; ok {
			continue
		}
		if _, ok := batch[k.TimeID]; ok {
			continue
		}
		batch[k.TimeID] = struct{}{}
		rows = append(rows, DeriveTimeDimension(k))
	}
	if len(rows) == 0 {
		t.scanned = true
		return 0, nil
	}

	n, err := t.dw.InsertTimeDimensionBatch(ctx, rows)
	if err != nil {
		return 0, fmt.Errorf("time dimension: %w", err)
	}
	for id := range batch {
		t.known[id] = struct{}{}
	}
	t.scanned = true
	return n, nil
}

func (t *TimeDimensionDeriver) allKnown(ids []int64) bool {
	for _, id := range ids {
		if _, ok := t.known[id]; !ok {
			return false
		}
	}
	return true
}
