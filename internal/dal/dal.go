package dal

import (
	"bytes"
	"context"
	"encoding/binary"
	"sort"
	"time"

	"github.com/coral-mesh/profilestore/internal/objectstore"
	"github.com/coral-mesh/profilestore/internal/xerrors"
)

// AggregatedRow is one post-aggregation group: a distinct stacktrace and
// the sum of every matching row's value (spec §4.12 step 3).
type AggregatedRow struct {
	Stacktrace [][]byte
	Value      int64
}

// Result is the output of select_single (spec §4.12 step 4).
type Result struct {
	Meta        Meta
	TimestampMs int64
	Rows        []AggregatedRow
}

// DAL is the C12 data access layer: a cached table provider plus the
// select_single query path.
type DAL struct {
	store    objectstore.Store
	provider *CachedProvider
}

// New constructs a DAL reading persisted files under prefix, re-resolving
// its file listing after maxStale.
func New(store objectstore.Store, prefix string, maxStale time.Duration) *DAL {
	return &DAL{store: store, provider: NewCachedProvider(store, prefix, maxStale)}
}

// SetClock overrides the provider's staleness clock; test hook only.
func (d *DAL) SetClock(c Clock) {
	d.provider.SetClock(c)
}

// SelectSingle implements spec §4.12's select_single(qs, timestamp_ms):
// parse the selector, filter every persisted row by label equality,
// timestamp, and meta identity, then group by stacktrace and sum value.
// An empty result set is NOT_FOUND.
func (d *DAL) SelectSingle(ctx context.Context, qs string, timestampMs int64) (Result, error) {
	q, err := ParseQuery(qs)
	if err != nil {
		return Result{}, err
	}

	keys, err := d.provider.Keys(ctx)
	if err != nil {
		return Result{}, err
	}

	groups := make(map[string]*AggregatedRow)
	var order []string

	for _, key := range keys {
		body, err := d.store.Get(ctx, key)
		if err != nil {
			return Result{}, err
		}
		rows, err := readRows(ctx, body)
		if err != nil {
			return Result{}, err
		}
		for _, r := range rows {
			if !matches(r, q, timestampMs) {
				continue
			}
			sk := stackKey(r.stacktrace)
			g, ok := groups[sk]
			if !ok {
				g = &AggregatedRow{Stacktrace: r.stacktrace}
				groups[sk] = g
				order = append(order, sk)
			}
			g.Value += r.value
		}
	}

	if len(groups) == 0 {
		return Result{}, xerrors.New(xerrors.NotFound, "NO_MATCHING_SAMPLES")
	}

	sort.Strings(order)
	rowsOut := make([]AggregatedRow, 0, len(order))
	for _, sk := range order {
		rowsOut = append(rowsOut, *groups[sk])
	}

	return Result{Meta: q.Meta, TimestampMs: timestampMs, Rows: rowsOut}, nil
}

func matches(r row, q Query, timestampMs int64) bool {
	if r.timestampMs != timestampMs {
		return false
	}
	if r.name != q.Meta.Name || r.sampleType != q.Meta.SampleType || r.sampleUnit != q.Meta.SampleUnit ||
		r.periodType != q.Meta.PeriodType || r.periodUnit != q.Meta.PeriodUnit {
		return false
	}
	for k, v := range q.LabelFilters {
		if r.labels[k] != v {
			return false
		}
	}
	return true
}

// stackKey builds a collision-resistant grouping key from a stack's
// encoded frames via length-prefixing, so frame boundaries can never be
// confused with adjacent frame bytes.
func stackKey(stack [][]byte) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte
	for _, frame := range stack {
		n := binary.PutUvarint(tmp[:], uint64(len(frame)))
		buf.Write(tmp[:n])
		buf.Write(frame)
	}
	return buf.String()
}
