package ingester

import (
	"context"
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/rs/zerolog"

	"github.com/coral-mesh/profilestore/internal/normalizer"
	"github.com/coral-mesh/profilestore/internal/objectstore"
)

// Clock is a test seam for the persisted-key timestamp (spec §6 key
// layout embeds unix_seconds).
type Clock func() time.Time

// Ingester is the C11 in-memory row buffer. ingest(batch) appends under a
// single writer lock and, once the buffer reaches maxRows, swaps the
// buffer out and hands the old batch to a detached background task for
// persistence (spec §4.11, §5 "the mutex is never held across I/O").
type Ingester struct {
	store  objectstore.Store
	schema *arrow.Schema
	logger zerolog.Logger
	clock  Clock

	maxRows int

	mu      sync.Mutex
	buf     *batchBuilder
	wg      sync.WaitGroup
	closing bool
}

// New constructs an Ingester that flushes to store once the buffered row
// count reaches maxRows.
func New(store objectstore.Store, maxRows int, logger zerolog.Logger) *Ingester {
	return &Ingester{
		store:   store,
		schema:  Schema(),
		logger:  logger,
		clock:   time.Now,
		maxRows: maxRows,
		buf:     newBatchBuilder(Schema()),
	}
}

// SetClock overrides the persisted-key timestamp source; test hook only.
func (ig *Ingester) SetClock(c Clock) {
	ig.clock = c
}

// Ingest appends rows to the buffer and triggers an asynchronous flush
// once the threshold is reached. It never blocks on I/O (spec §5).
func (ig *Ingester) Ingest(ctx context.Context, rows []normalizer.Row) {
	if len(rows) == 0 {
		return
	}

	ig.mu.Lock()
	ig.buf.add(rows...)
	var flushing arrow.Record
	if ig.buf.len() >= ig.maxRows {
		flushing = ig.buf.build()
	}
	ig.mu.Unlock()

	if flushing != nil {
		ig.flushAsync(ctx, flushing)
	}
}

// Flush forces persistence of whatever is currently buffered, regardless
// of threshold. Used on graceful shutdown.
func (ig *Ingester) Flush(ctx context.Context) {
	ig.mu.Lock()
	record := ig.buf.build()
	ig.mu.Unlock()

	if record != nil {
		ig.flushAsync(ctx, record)
	}
}

// Wait blocks until all in-flight background persistence tasks complete.
func (ig *Ingester) Wait() {
	ig.wg.Wait()
}

func (ig *Ingester) flushAsync(ctx context.Context, record arrow.Record) {
	ig.wg.Add(1)
	go func() {
		defer ig.wg.Done()
		defer record.Release()

		if err := persist(ctx, ig.store, ig.schema, record, ig.clock()); err != nil {
			ig.logger.Error().Err(err).Msg("ingester: persistence failed, batch dropped")
		}
	}()
}
