package meshjoin

import (
	"context"
	"errors"
	"fmt"
	"io"

	"meshjoin/internal/model"
	"meshjoin/internal/storage"
)

// Segmenter cuts the transaction stream into fixed-size segments.
type Segmenter struct {
	cur  storage.TransactionCursor
	size int
	read int64
	done bool
}

// NewSegmenter reads segments of up to size rows from cur. The caller keeps
// ownership of cur.
func NewSegmenter(cur storage.TransactionCursor, size int) (*Segmenter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("segmenter: segment size must be > 0 (got %d)", size)
	}
	return &Segmenter{cur: cur, size: size}, nil
}

// Read is the number of rows consumed from the cursor so far.
func (s *Segmenter) Read() int64 { return s.read }

// NextSegment consumes up to size rows and returns them keyed by order id:
// a later row with the same order id replaces the earlier one in place, so
// the result keeps first-appearance order with last-write-wins values.
// It returns io.EOF once the stream is exhausted.
func (s *Segmenter) NextSegment(ctx context.Context) ([]model.Transaction, error) {
	if s.done {
		return nil, io.EOF
	}

	out := make([]model.Transaction, 0, s.size)
	pos := make(map[int64]int, s.size)
	for consumed := 0; consumed < s.size; consumed++ {
		t, err := s.cur.Next(ctx)
		if errors.Is(err, io.EOF) {
			s.done = true
			break
		}
		if err != nil {
			return nil, err
		}
		s.read++

		if i, ok := pos[t.OrderID]; ok {
			out[i] = t
			continue
		}
		pos[t.OrderID] = len(out)
		out = append(out, t)
	}

	if len(out) == 0 && s.done {
		return nil, io.EOF
	}
	return out, nil
}
