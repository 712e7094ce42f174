// Package dal implements C12, the cached table provider and query
// selector over the columnar files the ingester writes (spec §4.12).
package dal

import (
	"strings"

	"github.com/coral-mesh/profilestore/internal/xerrors"
)

// Meta is the reconstructed query identity (spec §4.12 step 4, scenario 5).
type Meta struct {
	Name       string
	SampleType string
	SampleUnit string
	PeriodType string
	PeriodUnit string
}

// Query is a parsed selector: a set of exact label-column equalities plus
// the meta identity the result must match (spec §4.12 step 1-2).
type Query struct {
	LabelFilters map[string]string
	Meta         Meta
}

// ParseQuery parses the `<k1>=<v1>,<k2>=<v2>,…|<name>:<st_type>:<st_unit>:<pt_type>:<pt_unit>`
// selector syntax (spec §4.12 step 1, scenario 5). Tokens are `|`-, `,`-,
// `:`-, `=`-delimited and trimmed; any count mismatch is MALFORMED_QUERY.
func ParseQuery(qs string) (Query, error) {
	parts := strings.Split(qs, "|")
	if len(parts) != 2 {
		return Query{}, xerrors.New(xerrors.MalformedInput, "MALFORMED_QUERY: expected exactly one '|', got %d segments", len(parts))
	}

	labelFilters, err := parseLabelFilters(strings.TrimSpace(parts[0]))
	if err != nil {
		return Query{}, err
	}

	meta, err := parseMeta(strings.TrimSpace(parts[1]))
	if err != nil {
		return Query{}, err
	}

	return Query{LabelFilters: labelFilters, Meta: meta}, nil
}

func parseLabelFilters(raw string) (map[string]string, error) {
	if raw == "" {
		return nil, nil
	}
	out := make(map[string]string)
	for _, tok := range strings.Split(raw, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		kv := strings.SplitN(tok, "=", 2)
		if len(kv) != 2 {
			return nil, xerrors.New(xerrors.MalformedInput, "MALFORMED_QUERY: bad label token %q", tok)
		}
		k := strings.TrimSpace(kv[0])
		v := strings.TrimSpace(kv[1])
		if k == "" {
			return nil, xerrors.New(xerrors.MalformedInput, "MALFORMED_QUERY: empty label key in %q", tok)
		}
		out[k] = v
	}
	return out, nil
}

func parseMeta(raw string) (Meta, error) {
	fields := strings.Split(raw, ":")
	if len(fields) != 5 {
		return Meta{}, xerrors.New(xerrors.MalformedInput, "MALFORMED_QUERY: expected 5 ':'-delimited meta fields, got %d", len(fields))
	}
	for i, f := range fields {
		fields[i] = strings.TrimSpace(f)
	}
	return Meta{
		Name:       fields[0],
		SampleType: fields[1],
		SampleUnit: fields[2],
		PeriodType: fields[3],
		PeriodUnit: fields[4],
	}, nil
}
