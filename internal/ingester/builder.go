package ingester

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/coral-mesh/profilestore/internal/normalizer"
)

// batchBuilder accumulates normalizer.Row values into a single Arrow
// record, following the teacher's accumulate-then-build batch builder
// shape (field-at-a-time slices, one RecordBuilder per flush).
type batchBuilder struct {
	schema *arrow.Schema
	rows   []normalizer.Row
}

func newBatchBuilder(schema *arrow.Schema) *batchBuilder {
	return &batchBuilder{schema: schema}
}

func (b *batchBuilder) add(rows ...normalizer.Row) {
	b.rows = append(b.rows, rows...)
}

func (b *batchBuilder) len() int {
	return len(b.rows)
}

// build materializes the accumulated rows into an arrow.Record and resets
// the builder. Returns nil if no rows were accumulated.
func (b *batchBuilder) build() arrow.Record {
	if len(b.rows) == 0 {
		return nil
	}

	rb := array.NewRecordBuilder(memory.DefaultAllocator, b.schema)
	defer rb.Release()

	durationB := rb.Field(0).(*array.Int64Builder)
	nameB := rb.Field(1).(*array.StringBuilder)
	periodB := rb.Field(2).(*array.Int64Builder)
	periodTypeB := rb.Field(3).(*array.StringBuilder)
	periodUnitB := rb.Field(4).(*array.StringBuilder)
	sampleTypeB := rb.Field(5).(*array.StringBuilder)
	sampleUnitB := rb.Field(6).(*array.StringBuilder)
	stacktraceB := rb.Field(7).(*array.ListBuilder)
	stacktraceValueB := stacktraceB.ValueBuilder().(*array.BinaryBuilder)
	timestampB := rb.Field(8).(*array.Int64Builder)
	valueB := rb.Field(9).(*array.Int64Builder)

	labelBuilders := make([]*array.StringBuilder, len(LabelColumns))
	for i := range LabelColumns {
		labelBuilders[i] = rb.Field(10 + i).(*array.StringBuilder)
	}

	for _, row := range b.rows {
		durationB.Append(row.Duration)
		nameB.Append(row.Name)
		periodB.Append(row.Period)
		periodTypeB.Append(row.PeriodType)
		periodUnitB.Append(row.PeriodUnit)
		sampleTypeB.Append(row.SampleType)
		sampleUnitB.Append(row.SampleUnit)

		stacktraceB.Append(true)
		for _, frame := range row.Stacktrace {
			stacktraceValueB.Append(frame)
		}

		timestampB.Append(row.TimestampMs)
		valueB.Append(row.Value)

		for i, name := range LabelColumns {
			if v, ok := row.Labels[name]; ok {
				labelBuilders[i].Append(v)
			} else {
				labelBuilders[i].AppendNull()
			}
		}
	}

	record := rb.NewRecord()
	b.rows = nil
	return record
}
