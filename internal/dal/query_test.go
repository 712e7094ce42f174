package dal

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/profilestore/internal/xerrors"
)

func TestParseQuerySelectorScenario(t *testing.T) {
	q, err := ParseQuery("arch=aarch64 | parca_agent_cpu:samples:count:cpu:nanoseconds")
	require.NoError(t, err)
	require.Equal(t, Meta{
		Name:       "parca_agent_cpu",
		SampleType: "samples",
		SampleUnit: "count",
		PeriodType: "cpu",
		PeriodUnit: "nanoseconds",
	}, q.Meta)
	require.Equal(t, map[string]string{"arch": "aarch64"}, q.LabelFilters)
}

func TestParseQueryMultipleLabelFilters(t *testing.T) {
	q, err := ParseQuery("arch=aarch64,node=n1|name:st:su:pt:pu")
	require.NoError(t, err)
	require.Equal(t, "aarch64", q.LabelFilters["arch"])
	require.Equal(t, "n1", q.LabelFilters["node"])
}

func TestParseQueryRejectsMissingPipe(t *testing.T) {
	_, err := ParseQuery("arch=aarch64")
	require.Error(t, err)
	require.True(t, xerrors.Is(err, xerrors.MalformedInput))
}

func TestParseQueryRejectsWrongMetaFieldCount(t *testing.T) {
	_, err := ParseQuery("arch=aarch64|name:st:su")
	require.Error(t, err)
	require.True(t, xerrors.Is(err, xerrors.MalformedInput))
}

func TestParseQueryRejectsMalformedLabelToken(t *testing.T) {
	_, err := ParseQuery("badtoken|name:st:su:pt:pu")
	require.Error(t, err)
}
