// Package metastore implements C5, the keyed (build_id, kind) debug-info
// lifecycle record store (spec §3, §4.5). It is built on internal/lrucache,
// the generalized form of the teacher's mutex+map symbol cache, giving the
// process-wide singleton the spec requires: bounded capacity, safe for
// concurrent readers and writers, with eviction treated strictly as a
// cache property rather than a correctness guarantee.
package metastore

import (
	"fmt"
	"sync"
	"time"

	"github.com/coral-mesh/profilestore/internal/elfinfo"
	"github.com/coral-mesh/profilestore/internal/lrucache"
	"github.com/coral-mesh/profilestore/internal/xerrors"
)

// Kind is the debuginfo artifact kind (spec §3).
type Kind string

const (
	KindUnspecified Kind = "UNSPECIFIED"
	KindExecutable  Kind = "EXECUTABLE"
	KindSources     Kind = "SOURCES"
)

// Source records where a debuginfo record's bytes ultimately come from.
type Source string

const (
	SourceUpload     Source = "UPLOAD"
	SourceDebuginfod Source = "DEBUGINFOD"
)

// UploadState is the lifecycle state of an UPLOAD-sourced record.
type UploadState string

const (
	UploadStateUploading UploadState = "UPLOADING"
	UploadStateUploaded  UploadState = "UPLOADED"
)

// Upload describes the in-progress or completed upload session for an
// UPLOAD-sourced record.
type Upload struct {
	ID         string
	Hash       string
	StartedAt  time.Time
	FinishedAt time.Time
	State      UploadState
}

// Key identifies a debuginfo record.
type Key struct {
	BuildID string
	Kind    Kind
}

func (k Key) String() string { return fmt.Sprintf("%s/%s", k.BuildID, k.Kind) }

// Record is a debuginfo lifecycle record (spec §3).
type Record struct {
	BuildID           string
	Kind              Kind
	Source            Source
	Upload            *Upload
	Quality           *elfinfo.Quality
	DebuginfodServers []string
}

// Store is the bounded, concurrency-safe (build_id, kind) -> Record map.
type Store struct {
	cache *lrucache.Cache[Key, Record]
	mu    sync.Mutex // serializes read-modify-write transitions
}

// New creates a Store bounded to capacity entries.
func New(capacity int) *Store {
	return &Store{cache: lrucache.New[Key, Record](capacity)}
}

// Fetch returns the record for (build_id, kind), or ok=false if unseen.
func (s *Store) Fetch(buildID string, kind Kind) (Record, bool) {
	return s.cache.Get(Key{BuildID: buildID, Kind: kind})
}

// Write inserts or overwrites a record. It rejects an empty build_id or
// unrecognized kind, per spec §4.5.
func (s *Store) Write(rec Record) error {
	if rec.BuildID == "" {
		return xerrors.New(xerrors.MalformedInput, "metastore: empty build_id")
	}
	switch rec.Kind {
	case KindUnspecified, KindExecutable, KindSources:
	default:
		return xerrors.New(xerrors.MalformedInput, "metastore: invalid kind %q", rec.Kind)
	}
	s.cache.Set(Key{BuildID: rec.BuildID, Kind: rec.Kind}, rec)
	return nil
}

// MarkDebuginfod records that build-id's debug info is known to one or
// more debuginfod servers.
func (s *Store) MarkDebuginfod(buildID string, kind Kind, servers []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.Write(Record{
		BuildID:           buildID,
		Kind:              kind,
		Source:            SourceDebuginfod,
		DebuginfodServers: servers,
	})
}

// MarkUploading records a fresh UPLOADING session, preserving any quality
// previously recorded for this build-id.
func (s *Store) MarkUploading(buildID string, kind Kind, uploadID, hash string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, _ := s.Fetch(buildID, kind)
	return s.Write(Record{
		BuildID: buildID,
		Kind:    kind,
		Source:  SourceUpload,
		Upload: &Upload{
			ID:        uploadID,
			Hash:      hash,
			StartedAt: startedAt,
			State:     UploadStateUploading,
		},
		Quality: existing.Quality,
	})
}

// MarkUploaded transitions an UPLOADING record to UPLOADED. It fails with
// NOT_FOUND if no record exists, WRONG_STATE (FAILED_PRECONDITION) if the
// record is not UPLOADING, and UPLOAD_ID_MISMATCH (FAILED_PRECONDITION) if
// uploadID doesn't match the recorded session, per spec §4.5.
func (s *Store) MarkUploaded(buildID string, kind Kind, uploadID string, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.Fetch(buildID, kind)
	if !ok {
		return xerrors.New(xerrors.NotFound, "NOT_FOUND: no record for %s/%s", buildID, kind)
	}
	if rec.Upload == nil || rec.Upload.State != UploadStateUploading {
		return xerrors.New(xerrors.FailedPrecondition, "WRONG_STATE: %s/%s is not UPLOADING", buildID, kind)
	}
	if rec.Upload.ID != uploadID {
		return xerrors.New(xerrors.FailedPrecondition, "UPLOAD_ID_MISMATCH: got %s want %s", uploadID, rec.Upload.ID)
	}

	rec.Upload.State = UploadStateUploaded
	rec.Upload.FinishedAt = finishedAt
	return s.Write(rec)
}

// SetQuality records ELF quality signals for build-id (spec §7 "quality
// backfill": any symbolization attempt that parses an ELF blob updates
// this field).
func (s *Store) SetQuality(buildID string, kind Kind, q elfinfo.Quality) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.Fetch(buildID, kind)
	if !ok {
		rec = Record{BuildID: buildID, Kind: kind, Source: SourceUpload}
	}
	rec.Quality = &q
	return s.Write(rec)
}

// IsUploadStale reports whether an UPLOADING record has exceeded
// maxUploadDuration+2min since StartedAt (spec invariant 5).
func IsUploadStale(startedAt, now time.Time, maxUploadDuration time.Duration) bool {
	return now.Sub(startedAt) > maxUploadDuration+2*time.Minute
}
