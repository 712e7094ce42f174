package dal

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/profilestore/internal/ingester"
	"github.com/coral-mesh/profilestore/internal/normalizer"
	"github.com/coral-mesh/profilestore/internal/objectstore"
	"github.com/coral-mesh/profilestore/internal/xerrors"
)

func writeFixture(t *testing.T, store objectstore.Store, rows ...normalizer.Row) {
	t.Helper()
	ig := ingester.New(store, len(rows), zerolog.Nop())
	fixed := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	ig.SetClock(func() time.Time { return fixed })
	ig.Ingest(t.Context(), rows)
	ig.Wait()
}

func cpuRow(value int64, arch string, ts int64) normalizer.Row {
	return normalizer.Row{
		Duration:    10,
		Name:        "parca_agent_cpu",
		Period:      1000000,
		PeriodType:  "cpu",
		PeriodUnit:  "nanoseconds",
		SampleType:  "samples",
		SampleUnit:  "count",
		Stacktrace:  [][]byte{{0xAB, 0xCD}},
		TimestampMs: ts,
		Value:       value,
		Labels:      map[string]string{"arch": arch},
	}
}

func TestSelectSingleAggregatesMatchingRows(t *testing.T) {
	store, err := objectstore.NewLocal(t.TempDir())
	require.NoError(t, err)

	writeFixture(t, store,
		cpuRow(3, "aarch64", 1700000000000),
		cpuRow(4, "aarch64", 1700000000000),
		cpuRow(5, "amd64", 1700000000000),   // different label, excluded
		cpuRow(9, "aarch64", 1700000000001), // different timestamp, excluded
	)

	d := New(store, "", time.Hour)
	res, err := d.SelectSingle(t.Context(), "arch=aarch64|parca_agent_cpu:samples:count:cpu:nanoseconds", 1700000000000)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	require.Equal(t, int64(7), res.Rows[0].Value)
	require.Equal(t, "parca_agent_cpu", res.Meta.Name)
}

func TestSelectSingleNoMatchIsNotFound(t *testing.T) {
	store, err := objectstore.NewLocal(t.TempDir())
	require.NoError(t, err)
	writeFixture(t, store, cpuRow(1, "amd64", 1700000000000))

	d := New(store, "", time.Hour)
	_, err = d.SelectSingle(t.Context(), "arch=aarch64|parca_agent_cpu:samples:count:cpu:nanoseconds", 1700000000000)
	require.Error(t, err)
	require.True(t, xerrors.Is(err, xerrors.NotFound))
}

func TestSelectSingleRejectsMalformedQuery(t *testing.T) {
	store, err := objectstore.NewLocal(t.TempDir())
	require.NoError(t, err)

	d := New(store, "", time.Hour)
	_, err = d.SelectSingle(t.Context(), "not-a-query", 0)
	require.Error(t, err)
	require.True(t, xerrors.Is(err, xerrors.MalformedInput))
}
