package resolver

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/profilestore/internal/dal"
	"github.com/coral-mesh/profilestore/internal/debuginfod"
	"github.com/coral-mesh/profilestore/internal/debuginfo"
	"github.com/coral-mesh/profilestore/internal/location"
	"github.com/coral-mesh/profilestore/internal/metastore"
	"github.com/coral-mesh/profilestore/internal/objectstore"
	"github.com/coral-mesh/profilestore/internal/symbolizer"
)

func newTestResolver(t *testing.T) (*Resolver, *metastore.Store, *symbolizer.Cache) {
	t.Helper()
	store, err := objectstore.NewLocal(t.TempDir())
	require.NoError(t, err)

	metadata := metastore.New(10)
	cache := symbolizer.NewCache(10)
	client := debuginfod.New(nil, zerolog.Nop())
	fetcher := debuginfo.NewFetcher(store, client)

	return New(metadata, fetcher, cache, zerolog.Nop()), metadata, cache
}

func TestResolveBatchDegradesUnknownBuildID(t *testing.T) {
	r, _, _ := newTestResolver(t)

	frame := location.Frame{Address: 0x1234, BuildID: "deadbeef", MappingStart: 0x1000, MappingEnd: 0x2000}
	row := dal.AggregatedRow{Stacktrace: [][]byte{location.Encode(frame)}, Value: 7}

	out, err := r.ResolveBatch(t.Context(), []dal.AggregatedRow{row})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, int64(7), out[0].Value)
	require.Len(t, out[0].Locations, 1)
	require.Equal(t, uint64(0x1234), out[0].Locations[0].Address)
	require.Nil(t, out[0].Locations[0].Lines)
	require.NotNil(t, out[0].Locations[0].Mapping)
	require.Equal(t, "deadbeef", out[0].Locations[0].Mapping.BuildID)
}

func TestResolveBatchUsesCacheHitWithoutFetching(t *testing.T) {
	r, metadata, cache := newTestResolver(t)

	buildID := "cafef00d"
	require.NoError(t, metadata.Write(metastore.Record{BuildID: buildID, Kind: metastore.KindExecutable, Source: metastore.SourceUpload}))

	want := []location.Line{{Line: 42, Func: &location.Func{Name: "main.main"}}}
	cache.Set(buildID, 0x500, want)

	frame := location.Frame{Address: 0x500, BuildID: buildID}
	row := dal.AggregatedRow{Stacktrace: [][]byte{location.Encode(frame)}, Value: 1}

	out, err := r.ResolveBatch(t.Context(), []dal.AggregatedRow{row})
	require.NoError(t, err)
	require.Equal(t, want, out[0].Locations[0].Lines)
}

func TestResolveBatchSkipsNonSymbolizableFrame(t *testing.T) {
	r, _, _ := newTestResolver(t)

	frame := location.Frame{Address: 0, BuildID: ""}
	row := dal.AggregatedRow{Stacktrace: [][]byte{location.Encode(frame)}, Value: 3}

	out, err := r.ResolveBatch(t.Context(), []dal.AggregatedRow{row})
	require.NoError(t, err)
	require.Len(t, out[0].Locations, 1)
	require.Nil(t, out[0].Locations[0].Lines)
}

// strtab builds an ELF string table, tracking byte offsets the way
// debug/elf expects: a leading NUL for the empty string followed by one
// NUL-terminated entry per add.
type strtab struct{ buf []byte }

func newStrtab() *strtab { return &strtab{buf: []byte{0}} }

func (s *strtab) add(name string) uint32 {
	off := uint32(len(s.buf))
	s.buf = append(s.buf, []byte(name)...)
	s.buf = append(s.buf, 0)
	return off
}

// buildTestELF assembles a minimal real ET_EXEC x86-64 ELF: one PT_LOAD
// segment mapping file offset 0 to vaddr 0x400000, and a .symtab carrying
// one STT_FUNC symbol at funcVaddr. It exists to prove symbolizeGroup
// normalizes a runtime stack address into this file's own vaddr space
// before looking the symbol up - the raw runtime address used directly
// would fall far outside the segment entirely and resolve nothing.
func buildTestELF(t *testing.T, funcVaddr uint64) []byte {
	t.Helper()

	shstrtab := newStrtab()
	nameStrtab := shstrtab.add(".strtab")
	nameSymtab := shstrtab.add(".symtab")
	nameShstrtab := shstrtab.add(".shstrtab")

	symstrtab := newStrtab()
	nameFunc := symstrtab.add("myfunc")

	var symtabBuf bytes.Buffer
	require.NoError(t, binary.Write(&symtabBuf, binary.LittleEndian, elf.Sym64{})) // null symbol
	require.NoError(t, binary.Write(&symtabBuf, binary.LittleEndian, elf.Sym64{
		Name:  nameFunc,
		Info:  elf.ST_INFO(elf.STB_GLOBAL, elf.STT_FUNC),
		Other: 0,
		Shndx: 1,
		Value: funcVaddr,
		Size:  0x10,
	}))

	const (
		ehsize = 64
		phsize = 56
		shsize = 64
	)
	phoff := uint64(ehsize)
	strtabOff := phoff + phsize
	strtabLen := uint64(len(symstrtab.buf))
	symtabOff := strtabOff + strtabLen
	symtabLen := uint64(symtabBuf.Len())
	shstrtabOff := symtabOff + symtabLen
	shstrtabLen := uint64(len(shstrtab.buf))
	shoff := shstrtabOff + shstrtabLen

	var out bytes.Buffer

	var ident [16]byte
	copy(ident[:], "\x7fELF")
	ident[4] = byte(elf.ELFCLASS64)
	ident[5] = byte(elf.ELFDATA2LSB)
	ident[6] = byte(elf.EV_CURRENT)

	hdr := elf.Header64{
		Ident:     ident,
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_X86_64),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     0x400000,
		Phoff:     phoff,
		Shoff:     shoff,
		Ehsize:    ehsize,
		Phentsize: phsize,
		Phnum:     1,
		Shentsize: shsize,
		Shnum:     4,
		Shstrndx:  3,
	}
	require.NoError(t, binary.Write(&out, binary.LittleEndian, hdr))

	phdr := elf.Prog64{
		Type:   uint32(elf.PT_LOAD),
		Flags:  uint32(elf.PF_X | elf.PF_R),
		Off:    0,
		Vaddr:  0x400000,
		Paddr:  0x400000,
		Filesz: 0x2000,
		Memsz:  0x2000,
		Align:  0x1000,
	}
	require.NoError(t, binary.Write(&out, binary.LittleEndian, phdr))

	out.Write(symstrtab.buf)
	out.Write(symtabBuf.Bytes())
	out.Write(shstrtab.buf)

	sections := []elf.Section64{
		{}, // SHN_UNDEF
		{Name: nameStrtab, Type: uint32(elf.SHT_STRTAB), Off: strtabOff, Size: strtabLen, Addralign: 1},
		{Name: nameSymtab, Type: uint32(elf.SHT_SYMTAB), Off: symtabOff, Size: symtabLen, Link: 1, Info: 1, Addralign: 8, Entsize: 24},
		{Name: nameShstrtab, Type: uint32(elf.SHT_STRTAB), Off: shstrtabOff, Size: shstrtabLen, Addralign: 1},
	}
	for _, s := range sections {
		require.NoError(t, binary.Write(&out, binary.LittleEndian, s))
	}

	return out.Bytes()
}

// TestSymbolizeGroupNormalizesAddressBeforeSymbolizing is the integration
// test for the fix: the stack frame's address lives in a PIE-style load
// range far from the ELF's own 0x400000-based vaddr space, so it can only
// resolve to "myfunc" if symbolizeGroup first normalizes it against the
// frame's mapping rather than handing the raw runtime address to the
// cache and liner.
func TestSymbolizeGroupNormalizesAddressBeforeSymbolizing(t *testing.T) {
	bucket, err := objectstore.NewLocal(t.TempDir())
	require.NoError(t, err)

	const funcVaddr = 0x400100
	elfBytes := buildTestELF(t, funcVaddr)
	require.NoError(t, bucket.Put(t.Context(), "upload-1", elfBytes))

	metadata := metastore.New(10)
	buildID := "norm-test"
	require.NoError(t, metadata.Write(metastore.Record{
		BuildID: buildID,
		Kind:    metastore.KindExecutable,
		Source:  metastore.SourceUpload,
		Upload:  &metastore.Upload{ID: "upload-1"},
	}))

	client := debuginfod.New(nil, zerolog.Nop())
	fetcher := debuginfo.NewFetcher(bucket, client)
	cache := symbolizer.NewCache(10)
	r := New(metadata, fetcher, cache, zerolog.Nop())

	// mappingStart is a PIE-style runtime load base, far outside the
	// ELF's own file-relative vaddr space; offset is 0, so normalization
	// is addr - (mappingStart - hdr.Vaddr).
	const mappingStart = 0x7f0000000000
	const runtimeAddr = mappingStart + (funcVaddr - 0x400000)

	frame := location.Frame{
		Address:      runtimeAddr,
		BuildID:      buildID,
		FileName:     "/bin/test",
		MappingStart: mappingStart,
		MappingEnd:   mappingStart + 0x2000,
		MappingOff:   0,
	}
	row := dal.AggregatedRow{Stacktrace: [][]byte{location.Encode(frame)}, Value: 1}

	out, err := r.ResolveBatch(t.Context(), []dal.AggregatedRow{row})
	require.NoError(t, err)
	require.Len(t, out[0].Locations, 1)
	require.NotEmpty(t, out[0].Locations[0].Lines, "raw unnormalized address would miss the symbol entirely")
	require.Equal(t, "myfunc", out[0].Locations[0].Lines[0].Func.SystemName)

	// The cache must be keyed by the normalized address, not the raw
	// runtime one, so the entry is shared by every load base of the same
	// binary.
	lines, ok := cache.Get(buildID, funcVaddr)
	require.True(t, ok)
	require.Equal(t, "myfunc", lines[0].Func.SystemName)

	_, ok = cache.Get(buildID, runtimeAddr)
	require.False(t, ok, "cache must not be keyed by the raw runtime address")
}
