package symbolizer

import (
	"debug/dwarf"
	"debug/elf"
	"fmt"
	"sort"
	"strings"

	"github.com/coral-mesh/profilestore/internal/elfinfo"
	"github.com/coral-mesh/profilestore/internal/location"
)

// backendKind selects which resolution strategy a Liner uses, per the
// dispatch precedence of spec §4.8 and §9: DWARF > SYMBOL. This is modeled
// as a tagged variant (spec §9 "trait-style dispatch") rather than an
// interface hierarchy, since construction is a pure function of the ELF
// quality bits and the variant owns its own backend state for the call.
type backendKind int

const (
	backendNone backendKind = iota
	backendDWARF
	backendSymbol
)

type symEntry struct {
	addr uint64
	name string
}

// Liner resolves addresses to lines for a single build-id within the scope
// of one symbolize call (spec §3 "ELF parses and DWARF contexts are scoped
// to a single symbolize call and released on exit").
type Liner struct {
	elfFile *elf.File
	info    *elfinfo.Info
	quality elfinfo.Quality

	kind backendKind

	dwarfData *dwarf.Data
	symbols   []symEntry
}

// New constructs a Liner from a parsed ELF file and its previously-probed
// quality. The backend is selected lazily on first Resolve call.
func New(f *elf.File, quality elfinfo.Quality) *Liner {
	return &Liner{
		elfFile: f,
		info:    elfinfo.NewInfo(f),
		quality: quality,
	}
}

func (l *Liner) ensureBackend() {
	if l.kind != backendNone {
		return
	}
	if l.quality.HasDWARF {
		if d, err := l.elfFile.DWARF(); err == nil {
			l.dwarfData = d
			l.kind = backendDWARF
			return
		}
	}
	if l.quality.HasSymtab || l.quality.HasDynsym {
		l.symbols = l.collectSymbols()
		l.kind = backendSymbol
		return
	}
	l.kind = backendSymbol // empty symbol table: Resolve returns empty lines
}

// Resolve returns the line chain for normalized address addr, using the
// selected backend. A normalized-address lookup that finds nothing returns
// an empty slice, not an error — callers degrade gracefully per spec §4.13.
func (l *Liner) Resolve(addr uint64) []location.Line {
	l.ensureBackend()
	switch l.kind {
	case backendDWARF:
		if lines, err := l.resolveDWARF(addr); err == nil && len(lines) > 0 {
			return lines
		}
		if l.quality.HasSymtab || l.quality.HasDynsym {
			if l.symbols == nil {
				l.symbols = l.collectSymbols()
			}
			return l.resolveSymbol(addr)
		}
		return nil
	case backendSymbol:
		return l.resolveSymbol(addr)
	default:
		return nil
	}
}

// resolveDWARF enumerates inline frames for addr, outermost last, emitting
// a line only for frames with function+location+line+file all populated
// (spec §4.8).
func (l *Liner) resolveDWARF(addr uint64) ([]location.Line, error) {
	reader := l.dwarfData.Reader()

	var lines []location.Line
	for {
		entry, err := reader.Next()
		if err != nil {
			return nil, err
		}
		if entry == nil {
			break
		}
		if entry.Tag != dwarf.TagSubprogram && entry.Tag != dwarf.TagInlinedSubroutine {
			continue
		}

		nameAttr, _ := entry.Val(dwarf.AttrName).(string)
		if nameAttr == "" {
			continue
		}

		low, lowOK := entry.Val(dwarf.AttrLowpc).(uint64)
		if !lowOK {
			continue
		}
		high, highOK := highPC(entry, low)
		if !highOK {
			continue
		}
		if addr < low || addr >= high {
			continue
		}

		lineReader, err := l.dwarfData.LineReader(entry)
		if err != nil || lineReader == nil {
			continue
		}

		var lineEntry dwarf.LineEntry
		found := false
		for {
			if err := lineReader.Next(&lineEntry); err != nil {
				break
			}
			if lineEntry.Address == addr {
				found = true
				break
			}
		}
		if !found || lineEntry.File == nil {
			continue
		}

		lines = append(lines, location.Line{
			Line: int64(lineEntry.Line),
			Func: &location.Func{
				SystemName: nameAttr,
				Filename:   lineEntry.File.Name,
				StartLine:  int64(lineEntry.Line),
				Name:       demangle(nameAttr),
			},
		})
	}
	return lines, nil
}

func highPC(entry *dwarf.Entry, low uint64) (uint64, bool) {
	v := entry.Val(dwarf.AttrHighpc)
	switch t := v.(type) {
	case uint64:
		return t, true
	case int64:
		return low + uint64(t), true
	default:
		return 0, false
	}
}

// collectSymbols gathers static symbols, dynamic symbols, and PLT entries
// (renamed "{name}@plt"), sorted by address, per spec §4.8.
func (l *Liner) collectSymbols() []symEntry {
	var out []symEntry

	if syms, err := l.elfFile.Symbols(); err == nil {
		for _, s := range syms {
			if s.Name == "" || elf.ST_TYPE(s.Info) != elf.STT_FUNC {
				continue
			}
			out = append(out, symEntry{addr: s.Value, name: s.Name})
		}
	}
	if syms, err := l.elfFile.DynamicSymbols(); err == nil {
		for _, s := range syms {
			if s.Name == "" {
				continue
			}
			out = append(out, symEntry{addr: s.Value, name: s.Name})
		}
	}
	out = append(out, l.collectPLT()...)

	sort.Slice(out, func(i, j int) bool { return out[i].addr < out[j].addr })
	return out
}

// collectPLT extracts PLT stub addresses from the .rela.plt relocation
// section (64-bit ELF Elf64_Rela layout: 8-byte offset, 8-byte info,
// 8-byte addend), renaming each target symbol "{name}@plt" with address =
// relocation offset (spec §4.8). debug/elf does not expose a typed
// relocation reader for arbitrary architectures, so the section bytes are
// decoded directly; 32-bit ELF and non-RELA relocation sections are left
// unresolved.
func (l *Liner) collectPLT() []symEntry {
	if l.elfFile.Class != elf.ELFCLASS64 {
		return nil
	}
	sec := l.elfFile.Section(".rela.plt")
	if sec == nil {
		return nil
	}
	data, err := sec.Data()
	if err != nil || len(data)%24 != 0 {
		return nil
	}

	dynSyms, err := l.elfFile.DynamicSymbols()
	if err != nil {
		return nil
	}

	order := l.elfFile.ByteOrder
	var out []symEntry
	for off := 0; off+24 <= len(data); off += 24 {
		offset := order.Uint64(data[off:])
		info := order.Uint64(data[off+8:])
		symIdx := int(info >> 32)
		if symIdx <= 0 || symIdx > len(dynSyms) {
			continue
		}
		name := dynSyms[symIdx-1].Name
		if name == "" {
			continue
		}
		out = append(out, symEntry{addr: offset, name: name + "@plt"})
	}
	return out
}

// resolveSymbol binary-searches for the largest symbol address <= pc and
// emits a single line with no file:line info (spec §4.8).
func (l *Liner) resolveSymbol(pc uint64) []location.Line {
	if len(l.symbols) == 0 {
		return nil
	}
	idx := sort.Search(len(l.symbols), func(i int) bool { return l.symbols[i].addr > pc }) - 1
	if idx < 0 {
		return nil
	}
	sym := l.symbols[idx].name

	isPLT := strings.HasSuffix(sym, "@plt")
	bare := strings.TrimSuffix(sym, "@plt")
	name := demangle(bare)
	if isPLT {
		name = fmt.Sprintf("%s@plt", name)
	}

	return []location.Line{{
		Line: 0,
		Func: &location.Func{
			SystemName: sym,
			Name:       name,
			Filename:   "?",
		},
	}}
}
