package meshjoin

import (
	"context"
	"errors"
	"fmt"

	"meshjoin/internal/model"
	"meshjoin/internal/storage"
)

// ErrBatchOpen is returned by FactWriter.Close when appended facts were never
// flushed.
var ErrBatchOpen = errors.New("fact batch still open")

// FactWriter accumulates the facts of one segment and writes them in a single
// warehouse transaction on Flush.
//
// A batch opens lazily on the first Append after a Flush. Flush may be called
// with no open batch; it then writes nothing.
type FactWriter struct {
	dw    storage.Warehouse
	dedup FactDedup

	batch []model.SalesFact
	open  bool
	// times holds the time ids of the open batch under DedupTimeID.
	times map[int64]struct{}

	flushes int
}

// NewFactWriter returns a writer that applies dedup to every fact.
func NewFactWriter(dw storage.Warehouse, dedup FactDedup) *FactWriter {
	return &FactWriter{dw: dw, dedup: dedup}
}

// Append adds f to the open batch. ok is false when DedupTimeID suppressed it
// because a fact with the same time id is already in the warehouse or in the
// open batch.
func (w *FactWriter) Append(ctx context.Context, f model.SalesFact) (bool, error) {
	if w.dedup == DedupTimeID {
		if _, ok := w.times[f.TimeID]; ok {
			return false, nil
		}
		exists, err := w.dw.FactExists(ctx, model.FactKeyTimeID, f.TimeID)
		if err != nil {
			return false, fmt.Errorf("fact writer: %w", err)
		}
		if exists {
			return false, nil
		}
		if w.times == nil {
			w.times = make(map[int64]struct{})
		}
		w.times[f.TimeID] = struct{}{}
	}
	w.open = true
	w.batch = append(w.batch, f)
	return true, nil
}

// Pending is the number of facts waiting for Flush.
func (w *FactWriter) Pending() int { return len(w.batch) }

// Flushes counts Flush calls.
func (w *FactWriter) Flushes() int { return w.flushes }

// Flush writes the batch and closes it. It returns the number of rows the
// warehouse inserted; under DedupOrderID that excludes orders already loaded.
// On error the batch is discarded.
func (w *FactWriter) Flush(ctx context.Context) (int64, error) {
	w.flushes++
	if !w.open {
		return 0, nil
	}
	facts := w.batch
	w.reset()

	n, err := w.dw.InsertFactBatch(ctx, facts, w.dedup == DedupOrderID)
	if err != nil {
		return 0, fmt.Errorf("fact writer: flush %d facts: %w", len(facts), err)
	}
	return n, nil
}

// Discard drops the open batch without writing it and returns how many facts
// it held.
func (w *FactWriter) Discard() int {
	n := len(w.batch)
	w.reset()
	return n
}

func (w *FactWriter) reset() {
	w.batch = nil
	w.open = false
	w.times = nil
}

// Close releases the writer. It fails with ErrBatchOpen if facts are pending.
func (w *FactWriter) Close() error {
	if w.open {
		return fmt.Errorf("fact writer: %w (%d facts)", ErrBatchOpen, len(w.batch))
	}
	return nil
}
