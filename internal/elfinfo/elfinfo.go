// Package elfinfo implements C2 (executable info / address normalization)
// and C3 (the ELF quality probe) from spec §4.2–§4.3. It is grounded on the
// teacher's own ELF handling in internal/agent/debug/symbolizer.go, which
// reads program headers off debug/elf.File and computes a PIE load-address
// delta; this package generalizes that one-binary-one-PID computation into
// the mapping-table arithmetic the server needs when symbolizing stacks
// collected from many processes and many mappings.
package elfinfo

import (
	"debug/elf"
	"fmt"
)

const pageSize = 4096

// Mapping is a runtime memory mapping, as reported by the agent (spec §3).
type Mapping struct {
	Start  uint64
	End    uint64
	Offset uint64
	File   string
	BuildID string
}

// ProgHeader is the subset of an ELF program header relevant to address
// normalization.
type ProgHeader struct {
	Offset uint64
	Vaddr  uint64
	Memsz  uint64
	Flags  elf.ProgFlag
}

// Info holds the program headers of a parsed ELF file in file order plus
// its kind, enough to normalize addresses per mapping (C2).
type Info struct {
	Kind    elf.Type
	Headers []ProgHeader
	// TextSegment is the index into Headers of the PT_LOAD segment
	// containing .text, or -1 if none was found.
	TextSegment int
}

// NewInfo parses f's program headers and locates the segment containing
// .text.
func NewInfo(f *elf.File) *Info {
	info := &Info{Kind: f.Type, TextSegment: -1}

	for _, p := range f.Progs {
		info.Headers = append(info.Headers, ProgHeader{
			Offset: p.Off,
			Vaddr:  p.Vaddr,
			Memsz:  p.Memsz,
			Flags:  p.Flags,
		})
	}

	text := f.Section(".text")
	if text == nil {
		return info
	}

	for i, p := range info.Headers {
		if p.Flags&elf.PF_X == 0 {
			continue
		}
		if text.Addr >= p.Vaddr && text.Addr < p.Vaddr+p.Memsz {
			info.TextSegment = i
			break
		}
	}

	return info
}

// ErrInvalidMapping is returned when a Relocatable ELF is normalized
// against a mapping with a non-zero offset (spec §4.2).
var ErrInvalidMapping = fmt.Errorf("elfinfo: invalid mapping for relocatable object")

// ErrAmbiguousHeader is returned when normalize cannot uniquely select a
// program header for the requested file offset (spec §4.2).
var ErrAmbiguousHeader = fmt.Errorf("elfinfo: ambiguous program header for file offset")

// Normalize computes addr - base for the mapping, per spec §4.2.
func (info *Info) Normalize(addr uint64, m Mapping) (uint64, error) {
	base, err := info.base(addr, m)
	if err != nil {
		return 0, err
	}
	return addr - base, nil
}

func (info *Info) base(addr uint64, m Mapping) (uint64, error) {
	if m.Start == 0 && m.Offset == 0 && (m.End == 0 || m.End == 1<<64-1) {
		return 0, nil
	}

	if len(info.Headers) == 0 {
		return 0, nil
	}

	switch info.Kind {
	case elf.ET_EXEC, elf.ET_DYN:
		hdr, err := info.headerForMapping(m, addr)
		if err != nil {
			return 0, err
		}
		if hdr == nil {
			return m.Start - m.Offset, nil
		}
		return m.Start - m.Offset + hdr.Offset - hdr.Vaddr, nil
	case elf.ET_REL:
		if m.Offset != 0 {
			return 0, ErrInvalidMapping
		}
		hdr, err := info.headerForMapping(m, addr)
		if err != nil {
			return 0, err
		}
		if hdr == nil {
			return m.Start, nil
		}
		return hdr.Vaddr - hdr.Offset + m.Start, nil
	default:
		return 0, nil
	}
}

// headerForMapping implements program_headers_for_mapping + header_for_file_offset
// from spec §4.2: first narrow to segments overlapping the mapping's file
// range, then disambiguate by the specific file offset of addr if needed.
func (info *Info) headerForMapping(m Mapping, addr uint64) (*ProgHeader, error) {
	size := m.End - m.Start
	candidates := info.candidatesForRange(m.Offset, size)
	if len(candidates) == 0 {
		return nil, nil
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}

	fileOffset := addr - m.Start + m.Offset
	var unique *ProgHeader
	for _, h := range candidates {
		if fileOffset >= h.Offset && fileOffset < h.Offset+h.Memsz {
			if unique != nil {
				return nil, ErrAmbiguousHeader
			}
			unique = h
		}
	}
	if unique == nil {
		return nil, ErrAmbiguousHeader
	}
	return unique, nil
}

func (info *Info) candidatesForRange(offset, size uint64) []*ProgHeader {
	mapLimit := offset + size
	var out []*ProgHeader
	for i := range info.Headers {
		h := &info.Headers[i]
		if !overlaps(h.Offset, h.Memsz, offset, size) {
			continue
		}
		pageAligned := h.Offset &^ (pageSize - 1)
		if pageAligned > offset {
			continue
		}
		segLimit := h.Offset + h.Memsz
		if offset > h.Offset && segLimit < offset+pageSize && mapLimit >= segLimit+pageSize {
			continue // one-page-crossing false positive: mapping starts mid-segment,
			// covers less than a page of it, and runs at least a page past its end
		}
		out = append(out, h)
	}
	return out
}

func overlaps(aStart, aLen, bStart, bLen uint64) bool {
	aEnd := aStart + aLen
	bEnd := bStart + bLen
	return aStart < bEnd && bStart < aEnd
}
