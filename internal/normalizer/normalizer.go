package normalizer

import (
	"fmt"
	"sort"

	"github.com/google/pprof/profile"

	"github.com/coral-mesh/profilestore/internal/location"
	"github.com/coral-mesh/profilestore/internal/xerrors"
)

// NormalizedProfile is the per-sample-type normalization of a single raw
// pprof document (spec §4.10 step 3): one is produced per SampleType index
// present in the source profile, each carrying the rows for every sample
// whose value at that index is non-zero.
type NormalizedProfile struct {
	SampleType string
	SampleUnit string
	Rows       []Row
}

// Decode parses a single raw pprof payload, transparently handling the
// gzip-magic test spec §4.10 step 1 calls for (profile.Parse already does
// this), and rejects a profile whose internal reference graph is broken
// (dangling location/function/mapping ids) via the library's own
// CheckValid, per spec §4.10 step 2.
func Decode(raw []byte) (*profile.Profile, error) {
	p, err := profile.Parse(bytesReader(raw))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.MalformedInput, err, "MALFORMED_PPROF")
	}
	if err := p.CheckValid(); err != nil {
		return nil, xerrors.Wrap(xerrors.MalformedInput, err, "MALFORMED_PPROF")
	}
	return p, nil
}

// applyExecutableInfo overlays agent-supplied mapping metadata onto the
// parsed profile's mapping table when the collector could not populate
// Mapping itself (spec §4.10 step 2 invariant: len(info) == len(p.Mapping)
// whenever info is non-empty).
func applyExecutableInfo(p *profile.Profile, info []ExecutableMapping) error {
	if len(info) == 0 {
		return nil
	}
	if len(info) != len(p.Mapping) {
		return xerrors.New(xerrors.MalformedInput, "MALFORMED_EXECUTABLE_INFO: got %d entries for %d mappings", len(info), len(p.Mapping))
	}
	for i, m := range p.Mapping {
		ei := info[i]
		m.BuildID = ei.BuildID
		m.File = ei.File
		m.Start = ei.Start
		m.Limit = ei.End
		m.Offset = ei.Offset
	}
	return nil
}

// validateLabels enforces spec §3's series-label invariant: names other
// than "__name__" must be unique within the set.
func validateLabels(labels []Label) (name string, rest []Label, err error) {
	seen := make(map[string]bool, len(labels))
	for _, l := range labels {
		if l.Name == "__name__" {
			name = l.Value
			continue
		}
		if seen[l.Name] {
			return "", nil, xerrors.New(xerrors.MalformedInput, "DUPLICATE_LABEL: %q", l.Name)
		}
		seen[l.Name] = true
		rest = append(rest, l)
	}
	if name == "" {
		return "", nil, xerrors.New(xerrors.MalformedInput, "MISSING_NAME_LABEL")
	}
	return name, rest, nil
}

// encodeStack converts one pprof sample's location chain into C1-encoded
// frames in the order pprof itself stores Sample.Location (leaf first);
// the ordering is preserved verbatim, callers downstream treat index 0 as
// the leaf per spec §3.
func encodeStack(s *profile.Sample) [][]byte {
	stack := make([][]byte, 0, len(s.Location))
	for _, loc := range s.Location {
		f := location.Frame{Address: loc.Address}
		if loc.Mapping != nil {
			f.BuildID = loc.Mapping.BuildID
			f.FileName = loc.Mapping.File
			f.MappingStart = loc.Mapping.Start
			f.MappingEnd = loc.Mapping.Limit
			f.MappingOff = loc.Mapping.Offset
		}
		for _, l := range loc.Line {
			line := location.Line{Line: l.Line}
			if l.Function != nil {
				line.Func = &location.Func{
					Name:       l.Function.Name,
					SystemName: l.Function.SystemName,
					Filename:   l.Function.Filename,
					StartLine:  l.Function.StartLine,
				}
			}
			f.Lines = append(f.Lines, line)
		}
		stack = append(stack, location.Encode(f))
	}
	return stack
}

// seriesLabelsToRowLabels converts the series-level labels to the map
// carried on every emitted Row (spec §3 labels.<k>=<v> columns).
func seriesLabelsToRowLabels(rest []Label) map[string]string {
	if len(rest) == 0 {
		return nil
	}
	out := make(map[string]string, len(rest))
	for _, l := range rest {
		out[l.Name] = l.Value
	}
	return out
}

// sampleLabels merges the series-level labels with the sample's own string
// labels, first-occurrence-within-sample wins on key collision, sample
// labels take precedence over series labels (spec §4.10 step 3).
func sampleLabels(base map[string]string, s *profile.Sample) map[string]string {
	if len(s.Label) == 0 {
		return base
	}
	out := make(map[string]string, len(base)+len(s.Label))
	for k, v := range base {
		out[k] = v
	}
	keys := make([]string, 0, len(s.Label))
	for k := range s.Label {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		vs := s.Label[k]
		if len(vs) == 0 {
			continue
		}
		out[k] = vs[0] // first-occurrence wins (spec §4.10 step 3)
	}
	return out
}

// Normalize implements normalize_pprof(name, labels, profile): one
// NormalizedProfile per SampleType index, each containing a Row per sample
// whose value at that index is non-zero (spec §4.10 step 3). timestampMs
// and duration are derived from the profile's own TimeNanos/DurationNanos.
func Normalize(name string, seriesLabels map[string]string, p *profile.Profile) ([]NormalizedProfile, error) {
	if len(p.SampleType) == 0 {
		return nil, xerrors.New(xerrors.MalformedInput, "MALFORMED_PPROF: no sample types")
	}

	timestampMs := p.TimeNanos / int64(1e6)
	periodType, periodUnit := "", ""
	if p.PeriodType != nil {
		periodType, periodUnit = p.PeriodType.Type, p.PeriodType.Unit
	}

	out := make([]NormalizedProfile, len(p.SampleType))
	for i, st := range p.SampleType {
		np := NormalizedProfile{SampleType: st.Type, SampleUnit: st.Unit}
		for _, s := range p.Sample {
			if i >= len(s.Value) {
				return nil, xerrors.New(xerrors.MalformedInput, "MALFORMED_PPROF: sample missing value at index %d", i)
			}
			v := s.Value[i]
			if v == 0 {
				continue
			}
			np.Rows = append(np.Rows, Row{
				Duration:    p.DurationNanos,
				Name:        name,
				Period:      p.Period,
				PeriodType:  periodType,
				PeriodUnit:  periodUnit,
				SampleType:  st.Type,
				SampleUnit:  st.Unit,
				Stacktrace:  encodeStack(s),
				TimestampMs: timestampMs,
				Value:       v,
				Labels:      sampleLabels(seriesLabels, s),
			})
		}
		out[i] = np
	}
	return out, nil
}

// NormalizeSeries decodes and normalizes every sample of one series,
// concatenating the per-sample-type results across all of the series'
// raw profiles (spec §4.10).
func NormalizeSeries(series Series) ([]NormalizedProfile, error) {
	name, rest, err := validateLabels(series.Labels)
	if err != nil {
		return nil, err
	}
	seriesLabels := seriesLabelsToRowLabels(rest)

	byType := make(map[string]*NormalizedProfile)
	var order []string

	for si, sample := range series.Samples {
		p, err := Decode(sample.RawProfile)
		if err != nil {
			return nil, fmt.Errorf("normalizer: series sample %d: %w", si, err)
		}
		if err := applyExecutableInfo(p, sample.ExecutableInfo); err != nil {
			return nil, fmt.Errorf("normalizer: series sample %d: %w", si, err)
		}

		nps, err := Normalize(name, seriesLabels, p)
		if err != nil {
			return nil, fmt.Errorf("normalizer: series sample %d: %w", si, err)
		}
		for _, np := range nps {
			existing, ok := byType[np.SampleType]
			if !ok {
				cp := np
				byType[np.SampleType] = &cp
				order = append(order, np.SampleType)
				continue
			}
			existing.Rows = append(existing.Rows, np.Rows...)
		}
	}

	result := make([]NormalizedProfile, 0, len(order))
	for _, t := range order {
		result = append(result, *byType[t])
	}
	return result, nil
}
