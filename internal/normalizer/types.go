// Package normalizer implements C10: decoding agent-submitted pprof
// payloads, validating their internal reference graph, and flattening
// samples into the columnar Row shape the ingester (C11) accepts.
//
// Decoding reuses github.com/google/pprof/profile directly (already a
// direct teacher dependency) rather than hand-rolling a protobuf decoder:
// profile.Parse already handles the gzip-magic test and protobuf decode
// spec §4.10 step 2 calls for.
package normalizer

// Label is a single agent-reported (name, value) pair.
type Label struct {
	Name  string
	Value string
}

// ExecutableMapping mirrors the agent-supplied executable_info entries
// that accompany a raw profile when the collector could not populate the
// pprof Mapping table itself (spec §3 Mapping, §4.10 step 2 invariant
// "executable_info.len == mapping.len").
type ExecutableMapping struct {
	Address uint64
	BuildID string
	File    string
	Start   uint64
	End     uint64
	Offset  uint64
}

// Sample is one raw pprof document plus its out-of-band mapping info.
type Sample struct {
	RawProfile     []byte
	ExecutableInfo []ExecutableMapping
}

// Series is one agent-tagged stream of samples sharing a LabelSet.
type Series struct {
	Labels  []Label
	Samples []Sample
}

// WriteRawRequest is the ingestion RPC payload (spec §6).
type WriteRawRequest struct {
	Series []Series
}

// Row is one emitted columnar record (spec §3).
type Row struct {
	Duration    int64
	Name        string
	Period      int64
	PeriodType  string
	PeriodUnit  string
	SampleType  string
	SampleUnit  string
	Stacktrace  [][]byte // C1-encoded frames, leaf first as pprof orders them
	TimestampMs int64
	Value       int64
	Labels      map[string]string
}
