// Package meshjoin implements the join-and-load engine: it drains the
// transaction stream segment by segment, joins every transaction against
// rotating in-memory windows of the customer and product tables, makes the
// referenced dimension rows exist in the warehouse and loads one fact batch
// per segment.
//
// The engine is single-threaded. Apart from the two partition buffers and the
// fact batch it keeps no state between segments, and nothing is
// checkpointed: a restarted run starts again from the top of the stream.
package meshjoin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"meshjoin/internal/metrics"
	"meshjoin/internal/model"
	"meshjoin/internal/storage"
)

// Defaults used when Config leaves a field zero.
const (
	DefaultSegmentSize   = 200
	DefaultPartitionSize = 200
	DefaultJob           = "meshjoin"
)

// Config tunes one run.
type Config struct {
	Job           string
	SegmentSize   int
	PartitionSize int
	RefreshPolicy RefreshPolicy
	FactDedup     FactDedup
}

func (c Config) withDefaults() Config {
	if c.Job == "" {
		c.Job = DefaultJob
	}
	if c.SegmentSize == 0 {
		c.SegmentSize = DefaultSegmentSize
	}
	if c.PartitionSize == 0 {
		c.PartitionSize = DefaultPartitionSize
	}
	if c.RefreshPolicy == "" {
		c.RefreshPolicy = RefreshPerMiss
	}
	if c.FactDedup == "" {
		c.FactDedup = DedupOrderID
	}
	return c
}

// Stats summarises a run.
type Stats struct {
	Segments    int
	Read        int64 // rows consumed from the transaction stream
	Overwritten int64 // rows replaced by a later row with the same order id
	Resolved    int64
	Skipped     int64
	Suppressed  int64 // facts withheld by the duplicate policy
	Inserted    int64 // fact rows written
	TimeRows    int64 // time dimension rows written
	Refreshes   int
}

type state int

const (
	stateAwaitingSegment state = iota
	stateResolving
	stateFlushing
	stateDone
)

func (s state) String() string {
	switch s {
	case stateAwaitingSegment:
		return "awaiting_segment"
	case stateResolving:
		return "resolving"
	case stateFlushing:
		return "flushing"
	case stateDone:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Engine runs the join-and-load loop over one source and one warehouse.
type Engine struct {
	cfg Config
	src storage.Source
	dw  storage.Warehouse
	log *zap.Logger

	clockNowFn func() time.Time
}

// New validates cfg and returns an engine. The engine does not own src or dw.
func New(src storage.Source, dw storage.Warehouse, cfg Config, log *zap.Logger) (*Engine, error) {
	cfg = cfg.withDefaults()
	if cfg.SegmentSize < 0 || cfg.PartitionSize < 0 {
		return nil, fmt.Errorf("meshjoin: segment and partition size must be positive")
	}
	if _, err := ParseRefreshPolicy(string(cfg.RefreshPolicy)); err != nil {
		return nil, fmt.Errorf("meshjoin: %w", err)
	}
	if _, err := ParseFactDedup(string(cfg.FactDedup)); err != nil {
		return nil, fmt.Errorf("meshjoin: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{cfg: cfg, src: src, dw: dw, log: log, clockNowFn: time.Now}, nil
}

// run holds the per-run collaborators.
type run struct {
	seg      *Segmenter
	resolver *Resolver
	upserts  *Upserter
	times    *TimeDimensionDeriver
	writer   *FactWriter
}

// Run drains the whole transaction stream. Any storage error aborts the run
// and is returned together with the stats gathered so far.
func (e *Engine) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	start := e.clockNowFn()

	cur, err := e.src.OpenTransactions(ctx)
	if err != nil {
		return stats, err
	}
	defer cur.Close()

	r, err := e.newRun(cur)
	if err != nil {
		return stats, err
	}

	e.log.Info("run started",
		zap.String("job", e.cfg.Job),
		zap.Int("segment_size", e.cfg.SegmentSize),
		zap.Int("partition_size", e.cfg.PartitionSize),
		zap.String("refresh_policy", string(e.cfg.RefreshPolicy)),
		zap.String("fact_dedup", string(e.cfg.FactDedup)),
	)

	st := stateAwaitingSegment
	var seg segmentResult
	for st != stateDone {
		switch st {
		case stateAwaitingSegment:
			if err := ctx.Err(); err != nil {
				return e.finish(stats, r), fmt.Errorf("meshjoin: stopped after %d segments: %w", stats.Segments, err)
			}
			before := r.seg.Read()
			txns, err := r.seg.NextSegment(ctx)
			if errors.Is(err, io.EOF) {
				st = stateDone
				continue
			}
			if err != nil {
				return e.finish(stats, r), fmt.Errorf("meshjoin: segment %d: %w", stats.Segments+1, err)
			}
			stats.Segments++
			seg = segmentResult{
				started: e.clockNowFn(),
				txns:    txns,
				read:    r.seg.Read() - before,
			}
			st = stateResolving

		case stateResolving:
			if err := e.resolveSegment(ctx, r, &seg); err != nil {
				return e.abort(stats, r, seg, err)
			}
			st = stateFlushing

		case stateFlushing:
			if err := e.flushSegment(ctx, r, &seg); err != nil {
				return e.abort(stats, r, seg, err)
			}
			seg.addTo(&stats)
			metrics.RecordStep(e.cfg.Job, "segment", nil, e.clockNowFn().Sub(seg.started))
			e.logSegment(stats, seg, start)
			st = stateAwaitingSegment
		}
	}

	stats = e.finish(stats, r)
	if err := r.writer.Close(); err != nil {
		return stats, err
	}

	e.log.Info("run finished",
		zap.Int("segments", stats.Segments),
		zap.Int64("read", stats.Read),
		zap.Int64("overwritten", stats.Overwritten),
		zap.Int64("resolved", stats.Resolved),
		zap.Int64("skipped", stats.Skipped),
		zap.Int64("suppressed", stats.Suppressed),
		zap.Int64("inserted", stats.Inserted),
		zap.Int64("time_rows", stats.TimeRows),
		zap.Int("refreshes", stats.Refreshes),
		zap.Duration("elapsed", e.clockNowFn().Sub(start).Truncate(time.Millisecond)),
	)
	return stats, nil
}

func (e *Engine) newRun(cur storage.TransactionCursor) (*run, error) {
	seg, err := NewSegmenter(cur, e.cfg.SegmentSize)
	if err != nil {
		return nil, err
	}
	customers, err := NewCustomerBuffer(e.src, e.cfg.PartitionSize)
	if err != nil {
		return nil, err
	}
	products, err := NewProductBuffer(e.src, e.cfg.PartitionSize)
	if err != nil {
		return nil, err
	}
	return &run{
		seg:      seg,
		resolver: NewResolver(e.cfg.Job, e.src, customers, products, e.cfg.RefreshPolicy, e.log),
		upserts:  NewUpserter(e.dw),
		times:    NewTimeDimensionDeriver(e.src, e.dw),
		writer:   NewFactWriter(e.dw, e.cfg.FactDedup),
	}, nil
}

// segmentResult collects the counters of the segment in flight.
type segmentResult struct {
	started time.Time
	txns    []model.Transaction

	// timeIDs are the time ids referenced by the facts of the open batch.
	timeIDs []int64

	read       int64
	resolved   int64
	skipped    int64
	suppressed int64
	inserted   int64
	timeRows   int64
}

func (s segmentResult) addTo(st *Stats) {
	st.Read += s.read
	st.Overwritten += s.read - int64(len(s.txns))
	st.Resolved += s.resolved
	st.Skipped += s.skipped
	st.Suppressed += s.suppressed
	st.Inserted += s.inserted
	st.TimeRows += s.timeRows
}

// resolveSegment joins every transaction of the segment, ensures its
// dimension rows and appends its fact.
func (e *Engine) resolveSegment(ctx context.Context, r *run, seg *segmentResult) error {
	if e.cfg.RefreshPolicy == RefreshPerSegment {
		if err := r.resolver.Rotate(ctx); err != nil {
			return err
		}
	}

	for _, t := range seg.txns {
		en, ok, err := r.resolver.Resolve(ctx, t)
		if err != nil {
			return err
		}
		if !ok {
			seg.skipped++
			continue
		}
		seg.resolved++

		if err := r.upserts.Ensure(ctx, en); err != nil {
			return err
		}
		appended, err := r.writer.Append(ctx, en.Fact)
		if err != nil {
			return err
		}
		if !appended {
			seg.suppressed++
			continue
		}
		seg.timeIDs = append(seg.timeIDs, en.Fact.TimeID)
	}
	return nil
}

// flushSegment writes the time rows the segment needs, then the fact batch.
// The flush happens even when the segment produced no facts.
func (e *Engine) flushSegment(ctx context.Context, r *run, seg *segmentResult) error {
	t0 := e.clockNowFn()
	n, err := r.times.EnsureTimeDimension(ctx, seg.timeIDs...)
	metrics.RecordStep(e.cfg.Job, "time_dimension", err, e.clockNowFn().Sub(t0))
	if err != nil {
		return err
	}
	seg.timeRows = n

	pending := int64(r.writer.Pending())
	t0 = e.clockNowFn()
	inserted, err := r.writer.Flush(ctx)
	metrics.RecordStep(e.cfg.Job, "flush", err, e.clockNowFn().Sub(t0))
	if err != nil {
		return err
	}
	seg.inserted = inserted
	// Under DedupOrderID the warehouse silently skips orders it already has.
	seg.suppressed += pending - inserted

	metrics.RecordRow(e.cfg.Job, "read", seg.read)
	metrics.RecordRow(e.cfg.Job, "resolved", seg.resolved)
	metrics.RecordRow(e.cfg.Job, "skipped", seg.skipped)
	metrics.RecordRow(e.cfg.Job, "suppressed", seg.suppressed)
	metrics.RecordRow(e.cfg.Job, "inserted", seg.inserted)
	metrics.RecordBatches(e.cfg.Job, 1)
	return nil
}

// abort ends the run on a fatal segment error. Facts appended but not yet
// written are discarded.
func (e *Engine) abort(stats Stats, r *run, seg segmentResult, err error) (Stats, error) {
	metrics.RecordStep(e.cfg.Job, "segment", err, e.clockNowFn().Sub(seg.started))
	if n := r.writer.Discard(); n > 0 {
		e.log.Warn("fact batch discarded",
			zap.Int("segment", stats.Segments),
			zap.Int("facts", n),
		)
	}
	return e.finish(stats, r), fmt.Errorf("meshjoin: segment %d: %w", stats.Segments, err)
}

func (e *Engine) finish(stats Stats, r *run) Stats {
	stats.Refreshes = r.resolver.Refreshes()
	return stats
}

func (e *Engine) logSegment(stats Stats, seg segmentResult, start time.Time) {
	elapsed := e.clockNowFn().Sub(start)
	var rate int64
	if s := elapsed.Seconds(); s > 0 {
		rate = int64(float64(stats.Inserted) / s)
	}
	e.log.Info("segment loaded",
		zap.Int("segment", stats.Segments),
		zap.Int64("read", seg.read),
		zap.Int64("resolved", seg.resolved),
		zap.Int64("skipped", seg.skipped),
		zap.Int64("suppressed", seg.suppressed),
		zap.Int64("inserted", seg.inserted),
		zap.Int64("total_inserted", stats.Inserted),
		zap.Int64("rps", rate),
		zap.Duration("elapsed", elapsed.Truncate(time.Millisecond)),
	)
}
