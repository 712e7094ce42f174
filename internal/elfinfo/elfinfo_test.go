package elfinfo

import (
	"debug/elf"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeNoProgramHeaders(t *testing.T) {
	info := &Info{Kind: elf.ET_EXEC, TextSegment: -1}
	base, err := info.Normalize(0x1000, Mapping{Start: 0x400000, Offset: 0})
	require.NoError(t, err)
	require.Equal(t, uint64(0x1000), base)
}

func TestNormalizeAnonymousMapping(t *testing.T) {
	info := &Info{
		Kind:    elf.ET_DYN,
		Headers: []ProgHeader{{Offset: 0, Vaddr: 0, Memsz: 0x10000, Flags: elf.PF_X}},
	}
	addr, err := info.Normalize(0x1234, Mapping{Start: 0, End: 0, Offset: 0})
	require.NoError(t, err)
	require.Equal(t, uint64(0x1234), addr)
}

func TestNormalizeExecutableMapping(t *testing.T) {
	info := &Info{
		Kind: elf.ET_EXEC,
		Headers: []ProgHeader{
			{Offset: 0, Vaddr: 0x400000, Memsz: 0x10000, Flags: elf.PF_X},
		},
	}
	// base = mapping.start - mapping.offset + hdr.offset - hdr.vaddr
	// = 0x500000 - 0 + 0 - 0x400000 = 0x100000
	addr, err := info.Normalize(0x500100, Mapping{Start: 0x500000, End: 0x510000, Offset: 0})
	require.NoError(t, err)
	require.Equal(t, uint64(0x400100), addr)
}

func TestNormalizeRelocatableRequiresZeroOffset(t *testing.T) {
	info := &Info{
		Kind:    elf.ET_REL,
		Headers: []ProgHeader{{Offset: 0, Vaddr: 0, Memsz: 0x1000, Flags: elf.PF_X}},
	}
	_, err := info.Normalize(0x10, Mapping{Start: 0x1000, End: 0x2000, Offset: 0x10})
	require.ErrorIs(t, err, ErrInvalidMapping)
}

func TestNormalizeIsDeterministic(t *testing.T) {
	info := &Info{
		Kind: elf.ET_DYN,
		Headers: []ProgHeader{
			{Offset: 0, Vaddr: 0x1000, Memsz: 0x9000, Flags: elf.PF_X},
		},
	}
	m := Mapping{Start: 0x600000, End: 0x610000, Offset: 0}
	a, err := info.Normalize(0x601234, m)
	require.NoError(t, err)
	b, err := info.Normalize(0x601234, m)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestCandidatesForRangeExcludesOnePageCrossingFalsePositive(t *testing.T) {
	// header A ends well inside the mapping's first page. header B starts
	// inside that same page (still page-aligned to 0) and runs for the
	// rest of the mapping. The mapping overlaps both headers' file ranges,
	// but only covers a sliver of A's tail before crossing a full page
	// beyond A's end, so the one-page-crossing rule must exclude A as a
	// false positive, leaving B as the unambiguous candidate.
	info := &Info{
		Kind: elf.ET_EXEC,
		Headers: []ProgHeader{
			{Offset: 0, Vaddr: 0x400000, Memsz: 0x900, Flags: elf.PF_R},
			{Offset: 0x900, Vaddr: 0x400900, Memsz: 0x5000, Flags: elf.PF_X},
		},
	}

	candidates := info.candidatesForRange(0x500, 0x2000)
	require.Len(t, candidates, 1)
	require.Equal(t, uint64(0x900), candidates[0].Offset)
}

func TestCandidatesForRangeKeepsNonCrossingOverlap(t *testing.T) {
	// A mapping fully contained within one header's page range is not a
	// one-page-crossing false positive and must still be returned.
	info := &Info{
		Kind: elf.ET_EXEC,
		Headers: []ProgHeader{
			{Offset: 0, Vaddr: 0x400000, Memsz: 0x1000, Flags: elf.PF_R},
		},
	}

	candidates := info.candidatesForRange(0x100, 0x200)
	require.Len(t, candidates, 1)
	require.Equal(t, uint64(0), candidates[0].Offset)
}

func TestProbeQualityInvalidELF(t *testing.T) {
	q := ProbeQuality([]byte("not an elf file"))
	require.True(t, q.NotValidELF)
	require.False(t, q.HasDWARF)
	require.False(t, q.HasGoPclntab)
	require.False(t, q.HasSymtab)
	require.False(t, q.HasDynsym)
}

func TestIsDWARFSection(t *testing.T) {
	require.True(t, isDWARFSection(".debug_info"))
	require.True(t, isDWARFSection(".zdebug_line"))
	require.True(t, isDWARFSection("__debug_ranges"))
	require.False(t, isDWARFSection(".debug_unknown"))
	require.False(t, isDWARFSection(".text"))
}
