// Package location implements C1, the bijective codec that turns a single
// resolved stack frame into the compact byte string stored as a columnar
// stacktrace element (spec §4.1). Encoding is deterministic: identical
// frames always produce identical bytes, which lets the columnar store
// dictionary-encode and deduplicate stack traces.
package location

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Func describes an inlined or top-level function attribution for a line.
type Func struct {
	Name       string
	SystemName string
	Filename   string
	StartLine  int64
}

// Line is one source line attributed to a frame, optionally inlined.
type Line struct {
	Line int64
	Func *Func
}

// Frame is the frame-level unit C1 encodes: one instruction address plus
// the runtime mapping it was resolved against and, once symbolized, the
// inline line chain for that address.
type Frame struct {
	Address      uint64
	BuildID      string
	FileName     string
	MappingStart uint64
	MappingEnd   uint64
	MappingOff   uint64
	Lines        []Line
}

// HasMapping reports whether the frame carries mapping fields worth
// encoding: a build-id, a filename, or a nonzero start, end or offset.
func (f Frame) HasMapping() bool {
	return f.BuildID != "" || f.FileName != "" || f.MappingStart != 0 || f.MappingEnd != 0 || f.MappingOff != 0
}

// Symbolizable reports whether the frame carries enough information to be
// worth passing to the liner (spec invariant 4: address==0 or empty
// build-id is symbolization-skippable but still a valid stack element).
func (f Frame) Symbolizable() bool {
	return f.Address != 0 && f.BuildID != ""
}

func putUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func putString(buf *bytes.Buffer, s string) {
	putUvarint(buf, uint64(len(s)))
	buf.WriteString(s)
}

// Encode serializes f per spec §4.1:
//
//	uvarint(address) uvarint(#lines) mapping_flag(1B)
//	  [if flag=1: string(build_id) string(filename) uvarint(start) uvarint(end-start) uvarint(offset)]
//	  for each line: uvarint(line) function_flag(1B)
//	    [if =1: uvarint(start_line) string(name) string(system_name) string(filename)]
func Encode(f Frame) []byte {
	var buf bytes.Buffer
	putUvarint(&buf, f.Address)
	putUvarint(&buf, uint64(len(f.Lines)))

	if f.HasMapping() {
		buf.WriteByte(1)
		putString(&buf, f.BuildID)
		putString(&buf, f.FileName)
		putUvarint(&buf, f.MappingStart)
		putUvarint(&buf, f.MappingEnd-f.MappingStart)
		putUvarint(&buf, f.MappingOff)
	} else {
		buf.WriteByte(0)
	}

	for _, l := range f.Lines {
		putUvarint(&buf, uint64(l.Line))
		if l.Func != nil {
			buf.WriteByte(1)
			putUvarint(&buf, uint64(l.Func.StartLine))
			putString(&buf, l.Func.Name)
			putString(&buf, l.Func.SystemName)
			putString(&buf, l.Func.Filename)
		} else {
			buf.WriteByte(0)
		}
	}

	return buf.Bytes()
}

// Decode is the exact inverse of Encode.
func Decode(b []byte) (Frame, error) {
	r := bytes.NewReader(b)

	address, err := binary.ReadUvarint(r)
	if err != nil {
		return Frame{}, fmt.Errorf("location: read address: %w", err)
	}
	numLines, err := binary.ReadUvarint(r)
	if err != nil {
		return Frame{}, fmt.Errorf("location: read line count: %w", err)
	}

	mappingFlag, err := r.ReadByte()
	if err != nil {
		return Frame{}, fmt.Errorf("location: read mapping flag: %w", err)
	}

	f := Frame{Address: address}

	if mappingFlag == 1 {
		buildID, err := readString(r)
		if err != nil {
			return Frame{}, fmt.Errorf("location: read build_id: %w", err)
		}
		fileName, err := readString(r)
		if err != nil {
			return Frame{}, fmt.Errorf("location: read file_name: %w", err)
		}
		start, err := binary.ReadUvarint(r)
		if err != nil {
			return Frame{}, fmt.Errorf("location: read mapping start: %w", err)
		}
		size, err := binary.ReadUvarint(r)
		if err != nil {
			return Frame{}, fmt.Errorf("location: read mapping size: %w", err)
		}
		offset, err := binary.ReadUvarint(r)
		if err != nil {
			return Frame{}, fmt.Errorf("location: read mapping offset: %w", err)
		}
		f.BuildID = buildID
		f.FileName = fileName
		f.MappingStart = start
		f.MappingEnd = start + size
		f.MappingOff = offset
	} else if mappingFlag != 0 {
		return Frame{}, fmt.Errorf("location: invalid mapping flag %d", mappingFlag)
	}

	f.Lines = make([]Line, 0, numLines)
	for i := uint64(0); i < numLines; i++ {
		lineNo, err := binary.ReadUvarint(r)
		if err != nil {
			return Frame{}, fmt.Errorf("location: read line %d: %w", i, err)
		}
		funcFlag, err := r.ReadByte()
		if err != nil {
			return Frame{}, fmt.Errorf("location: read function flag for line %d: %w", i, err)
		}

		l := Line{Line: int64(lineNo)}
		if funcFlag == 1 {
			startLine, err := binary.ReadUvarint(r)
			if err != nil {
				return Frame{}, fmt.Errorf("location: read start_line for line %d: %w", i, err)
			}
			name, err := readString(r)
			if err != nil {
				return Frame{}, fmt.Errorf("location: read name for line %d: %w", i, err)
			}
			systemName, err := readString(r)
			if err != nil {
				return Frame{}, fmt.Errorf("location: read system_name for line %d: %w", i, err)
			}
			filename, err := readString(r)
			if err != nil {
				return Frame{}, fmt.Errorf("location: read filename for line %d: %w", i, err)
			}
			l.Func = &Func{
				Name:       name,
				SystemName: systemName,
				Filename:   filename,
				StartLine:  int64(startLine),
			}
		} else if funcFlag != 0 {
			return Frame{}, fmt.Errorf("location: invalid function flag %d for line %d", funcFlag, i)
		}
		f.Lines = append(f.Lines, l)
	}

	return f, nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// Equal reports frame equality by byte-equality of their encodings, as
// required by spec §4.1.
func Equal(a, b Frame) bool {
	return bytes.Equal(Encode(a), Encode(b))
}
