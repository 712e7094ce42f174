// Package resolver implements C13: turning a DAL-aggregated batch's raw
// encoded stacktraces into symbolized location columns, grouping frames
// per build-id so each distinct binary is only fetched and parsed once
// per resolve call (spec §4.13).
package resolver

import (
	"bytes"
	"context"
	"debug/elf"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/profilestore/internal/dal"
	"github.com/coral-mesh/profilestore/internal/debuginfo"
	"github.com/coral-mesh/profilestore/internal/elfinfo"
	"github.com/coral-mesh/profilestore/internal/location"
	"github.com/coral-mesh/profilestore/internal/metastore"
	"github.com/coral-mesh/profilestore/internal/symbolizer"
)

// Mapping is the nested mapping struct attached to a resolved location.
type Mapping struct {
	BuildID      string
	File         string
	Start, End   uint64
	Offset       uint64
	HasFunctions bool
}

// Location is one symbolized (or gracefully degraded) stack entry
// (spec §4.13).
type Location struct {
	Address uint64
	Mapping *Mapping
	Lines   []location.Line // nil when symbolization is unavailable
}

// ResolvedRow mirrors one input AggregatedRow with its stacktrace expanded
// into symbolized locations. values_per_second is intentionally omitted:
// the spec marks it null at this stage (spec §4.13).
type ResolvedRow struct {
	Locations []Location
	Value     int64
}

// Resolver is the C13 component.
type Resolver struct {
	metadata *metastore.Store
	fetcher  *debuginfo.Fetcher
	cache    *symbolizer.Cache
	logger   zerolog.Logger
}

// New constructs a Resolver.
func New(metadata *metastore.Store, fetcher *debuginfo.Fetcher, cache *symbolizer.Cache, logger zerolog.Logger) *Resolver {
	return &Resolver{metadata: metadata, fetcher: fetcher, cache: cache, logger: logger}
}

// decodedFrame keeps a stack frame's position alongside its decoded form
// so results can be scattered back into the right row/slot after
// per-build-id batch symbolization.
type decodedFrame struct {
	rowIdx, slotIdx int
	frame           location.Frame
}

// ResolveBatch implements spec §4.13: group frames by build-id, issue one
// symbolization pass per build-id covering every distinct normalized
// address referenced, and assemble the output rows. A build-id with no
// usable debug info degrades every one of its frames to address-only
// locations rather than failing the call.
func (r *Resolver) ResolveBatch(ctx context.Context, rows []dal.AggregatedRow) ([]ResolvedRow, error) {
	out := make([]ResolvedRow, len(rows))
	byBuildID := make(map[string][]decodedFrame)

	for ri, row := range rows {
		out[ri] = ResolvedRow{Locations: make([]Location, len(row.Stacktrace)), Value: row.Value}
		for si, raw := range row.Stacktrace {
			f, err := location.Decode(raw)
			if err != nil {
				continue // malformed frame bytes degrade like a missing build-id
			}

			out[ri].Locations[si] = Location{
				Address: f.Address,
				Mapping: mappingOf(f),
			}

			if !f.Symbolizable() {
				continue
			}
			byBuildID[f.BuildID] = append(byBuildID[f.BuildID], decodedFrame{rowIdx: ri, slotIdx: si, frame: f})
		}
	}

	for buildID, frames := range byBuildID {
		r.symbolizeGroup(ctx, buildID, frames, out)
	}

	return out, nil
}

func mappingOf(f location.Frame) *Mapping {
	if !f.HasMapping() {
		return nil
	}
	return &Mapping{
		BuildID: f.BuildID,
		File:    f.FileName,
		Start:   f.MappingStart,
		End:     f.MappingEnd,
		Offset:  f.MappingOff,
	}
}

// elfMappingOf builds the elfinfo.Mapping a frame's own MappingStart/
// MappingEnd/MappingOff describe, for use with Info.Normalize. This is a
// distinct type from the resolver's own Mapping above (which is the API
// response DTO); the two happen to share field values but serve different
// layers.
func elfMappingOf(f location.Frame) elfinfo.Mapping {
	return elfinfo.Mapping{
		Start:   f.MappingStart,
		End:     f.MappingEnd,
		Offset:  f.MappingOff,
		File:    f.FileName,
		BuildID: f.BuildID,
	}
}

// isIdentityMapping mirrors elfinfo.Info.base's own fast path: a mapping
// with no offset or base carries runtime addresses that are already
// file-relative, so normalization needs no program-header lookup (and no
// ELF fetch) at all.
func isIdentityMapping(m elfinfo.Mapping) bool {
	return m.Start == 0 && m.Offset == 0 && (m.End == 0 || m.End == 1<<64-1)
}

// symbolizeGroup resolves every frame sharing buildID. Every address is
// normalized via elfinfo.Normalize against the frame's own mapping before
// it is used as a cache key or handed to the liner (spec §4.2, §4.13):
// DWARF/symtab addresses are file-relative, stack addresses are live
// runtime addresses with a load-time base offset, and skipping this step
// makes every lookup silently miss on any non-identity mapping (i.e. most
// PIE/shared-library binaries). Identity mappings (the frame carries no
// load offset) need no program-header lookup and so skip the ELF fetch
// entirely, preserving the cache-hit-without-fetch path for that case;
// any other mapping requires the ELF's program headers before a cache
// lookup is even meaningful, so the fetch happens on first use regardless
// of cache state. Any failure along the way (fetch, parse, quality,
// normalization) leaves the affected location(s) address-only:
// degradation, not an error (spec §4.13, §7 propagation policy).
func (r *Resolver) symbolizeGroup(ctx context.Context, buildID string, frames []decodedFrame, out []ResolvedRow) {
	rec, ok := r.metadata.Fetch(buildID, metastore.KindExecutable)
	if !ok {
		return
	}
	if rec.Quality != nil && rec.Quality.NotValidELF {
		return
	}

	var liner *symbolizer.Liner
	var info *elfinfo.Info
	var quality elfinfo.Quality
	fetchFailed := false

	ensureELF := func() bool {
		if liner != nil || fetchFailed {
			return liner != nil
		}
		raw, err := r.fetcher.FetchRawELF(ctx, rec)
		if err != nil {
			r.logger.Warn().Err(err).Str("build_id", buildID).Msg("resolver: fetch debuginfo failed, degrading to address-only")
			fetchFailed = true
			return false
		}
		quality = elfinfo.ProbeQuality(raw)
		_ = r.metadata.SetQuality(buildID, metastore.KindExecutable, quality)
		if quality.NotValidELF {
			fetchFailed = true
			return false
		}
		f, err := elf.NewFile(bytes.NewReader(raw))
		if err != nil {
			fetchFailed = true
			return false
		}
		info = elfinfo.NewInfo(f)
		liner = symbolizer.New(f, quality)
		return true
	}

	for _, df := range frames {
		mapping := elfMappingOf(df.frame)

		var normAddr uint64
		if isIdentityMapping(mapping) {
			normAddr = df.frame.Address
		} else {
			if !ensureELF() {
				return
			}
			addr, err := info.Normalize(df.frame.Address, mapping)
			if err != nil {
				r.logger.Debug().Err(err).Str("build_id", buildID).Msg("resolver: address normalization failed, degrading frame to address-only")
				continue
			}
			normAddr = addr
		}

		if lines, ok := r.cache.Get(buildID, normAddr); ok {
			out[df.rowIdx].Locations[df.slotIdx].Lines = lines
			continue
		}

		if !ensureELF() {
			return
		}

		lines := liner.Resolve(normAddr)
		r.cache.Set(buildID, normAddr, lines)
		if len(lines) > 0 {
			out[df.rowIdx].Locations[df.slotIdx].Lines = lines
		}
	}
}
