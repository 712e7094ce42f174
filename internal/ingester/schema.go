// Package ingester implements C11: the in-memory row buffer and
// background Parquet writer that persists normalized rows to the object
// store under a date-partitioned key layout (spec §4.11, §6).
package ingester

import "github.com/apache/arrow-go/v18/arrow"

// LabelColumns is the fixed, enumerated metadata-label set the column
// store recognizes (spec §6). Any series label outside this set is
// dropped from columns but still preserved in Meta normalization
// upstream (spec §3).
var LabelColumns = []string{
	"pid", "ppid", "arch", "systemd_unit", "node", "cgroup_name",
	"compiler", "stripped", "static", "comm", "executable",
	"kernel_release", "agent_revision", "buildid", "thread_id",
	"thread_name", "namespace", "pod", "container", "containerid",
}

// Schema builds the fixed Parquet row-group schema (spec §6 "Persisted
// layout", column order fixed). Columns logically dictionary-encoded
// ("dict<str>") are typed as plain strings at the Arrow level; dictionary
// page encoding is applied by the Parquet writer properties (see
// writerProperties in writer.go), matching the teacher's
// WithBloomFilterEnabledFor-style per-column writer configuration rather
// than an in-memory arrow.DictionaryType.
func Schema() *arrow.Schema {
	fields := []arrow.Field{
		{Name: "duration", Type: arrow.PrimitiveTypes.Int64},
		{Name: "name", Type: arrow.BinaryTypes.String},
		{Name: "period", Type: arrow.PrimitiveTypes.Int64},
		{Name: "period_type", Type: arrow.BinaryTypes.String},
		{Name: "period_unit", Type: arrow.BinaryTypes.String},
		{Name: "sample_type", Type: arrow.BinaryTypes.String},
		{Name: "sample_unit", Type: arrow.BinaryTypes.String},
		{Name: "stacktrace", Type: arrow.ListOf(arrow.BinaryTypes.Binary)},
		{Name: "timestamp", Type: arrow.PrimitiveTypes.Int64},
		{Name: "value", Type: arrow.PrimitiveTypes.Int64},
	}
	for _, name := range LabelColumns {
		fields = append(fields, arrow.Field{
			Name:     "labels." + name,
			Type:     arrow.BinaryTypes.String,
			Nullable: true,
		})
	}
	return arrow.NewSchema(fields, nil)
}

// dictionaryColumns returns the names of every column that should receive
// Parquet dictionary-page encoding: the fixed meta string columns plus
// every enumerated label column (spec §4.11 step 2).
func dictionaryColumns() []string {
	cols := []string{"name", "period_type", "period_unit", "sample_type", "sample_unit"}
	for _, name := range LabelColumns {
		cols = append(cols, "labels."+name)
	}
	return cols
}
