package dal

import (
	"bytes"
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/coral-mesh/profilestore/internal/ingester"
)

// row is one decoded record from a persisted file, shaped for filter
// matching and stacktrace aggregation (spec §4.12 step 2-3).
type row struct {
	name                                            string
	periodType, periodUnit, sampleType, sampleUnit string
	timestampMs                                    int64
	value                                           int64
	stacktrace                                      [][]byte
	labels                                          map[string]string
}

// readRows decodes every row of one persisted Parquet file body, column
// positions fixed by ingester.Schema().
func readRows(ctx context.Context, body []byte) ([]row, error) {
	pf, err := file.NewParquetReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("dal: open parquet file: %w", err)
	}
	defer pf.Close()

	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return nil, fmt.Errorf("dal: new arrow reader: %w", err)
	}

	tbl, err := fr.ReadTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("dal: read table: %w", err)
	}
	defer tbl.Release()

	tr := array.NewTableReader(tbl, tbl.NumRows())
	defer tr.Release()

	var out []row
	for tr.Next() {
		rec := tr.Record()

		nameCol := rec.Column(1).(*array.String)
		periodTypeCol := rec.Column(3).(*array.String)
		periodUnitCol := rec.Column(4).(*array.String)
		sampleTypeCol := rec.Column(5).(*array.String)
		sampleUnitCol := rec.Column(6).(*array.String)
		stacktraceCol := rec.Column(7).(*array.List)
		stacktraceValues := stacktraceCol.ListValues().(*array.Binary)
		timestampCol := rec.Column(8).(*array.Int64)
		valueCol := rec.Column(9).(*array.Int64)

		labelCols := make([]*array.String, len(ingester.LabelColumns))
		for i := range ingester.LabelColumns {
			labelCols[i] = rec.Column(10 + i).(*array.String)
		}

		n := int(rec.NumRows())
		for i := 0; i < n; i++ {
			start, end := stacktraceCol.ValueOffsets(i)
			stack := make([][]byte, 0, end-start)
			for j := start; j < end; j++ {
				stack = append(stack, append([]byte(nil), stacktraceValues.Value(int(j))...))
			}

			labels := make(map[string]string, len(ingester.LabelColumns))
			for li, name := range ingester.LabelColumns {
				col := labelCols[li]
				if col.IsValid(i) {
					labels[name] = col.Value(i)
				}
			}

			out = append(out, row{
				name:         nameCol.Value(i),
				periodType:   periodTypeCol.Value(i),
				periodUnit:   periodUnitCol.Value(i),
				sampleType:   sampleTypeCol.Value(i),
				sampleUnit:   sampleUnitCol.Value(i),
				timestampMs:  timestampCol.Value(i),
				value:        valueCol.Value(i),
				stacktrace:   stack,
				labels:       labels,
			})
		}
	}
	return out, nil
}
