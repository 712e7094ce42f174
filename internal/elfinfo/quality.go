package elfinfo

import (
	"debug/elf"
	"io"
	"strings"
)

// Quality records the debug-info signals an ELF blob carries (spec §4.3,
// §3 Debuginfo record).
type Quality struct {
	NotValidELF  bool
	HasDWARF     bool
	HasGoPclntab bool
	HasSymtab    bool
	HasDynsym    bool
}

var debugSectionSuffixes = []string{"abbrev", "info", "str", "line", "ranges"}
var debugSectionPrefixes = []string{".debug_", ".zdebug_", "__debug_"}

// ProbeQuality inspects raw ELF bytes for DWARF, Go pclntab, and symbol
// table presence. Any parse failure yields NotValidELF=true with every
// other bit false, per spec §4.3.
func ProbeQuality(raw []byte) Quality {
	f, err := elf.NewFile(byteReaderAt(raw))
	if err != nil {
		return Quality{NotValidELF: true}
	}
	defer f.Close() // nolint:errcheck

	q := Quality{}

	for _, sec := range f.Sections {
		if sec.Type != elf.SHT_PROGBITS {
			continue
		}
		if isDWARFSection(sec.Name) {
			q.HasDWARF = true
		}
		if sec.Name == ".gopclntab" || sec.Name == ".data.rel.ro.gopclntab" {
			q.HasGoPclntab = true
		}
	}

	if !q.HasGoPclntab {
		if hasSymbolPair(f, "runtime.pclntab", "runtime.epclntab") {
			q.HasGoPclntab = true
		}
	}

	if syms, err := f.Symbols(); err == nil && len(syms) > 0 {
		q.HasSymtab = true
	}
	if syms, err := f.DynamicSymbols(); err == nil && len(syms) > 0 {
		q.HasDynsym = true
	}

	return q
}

func isDWARFSection(name string) bool {
	for _, prefix := range debugSectionPrefixes {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		suffix := strings.TrimPrefix(name, prefix)
		for _, s := range debugSectionSuffixes {
			if suffix == s {
				return true
			}
		}
	}
	return false
}

func hasSymbolPair(f *elf.File, a, b string) bool {
	found := map[string]bool{}
	for _, syms := range [][]elf.Symbol{symbolsOrNil(f), dynSymbolsOrNil(f)} {
		for _, s := range syms {
			if s.Name == a || s.Name == b {
				found[s.Name] = true
			}
		}
	}
	return found[a] && found[b]
}

func symbolsOrNil(f *elf.File) []elf.Symbol {
	syms, err := f.Symbols()
	if err != nil {
		return nil
	}
	return syms
}

func dynSymbolsOrNil(f *elf.File) []elf.Symbol {
	syms, err := f.DynamicSymbols()
	if err != nil {
		return nil
	}
	return syms
}

// byteReaderAt adapts a byte slice to io.ReaderAt for elf.NewFile.
type byteReaderAt []byte

func (b byteReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(b)) {
		return 0, io.EOF
	}
	n := copy(p, b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
