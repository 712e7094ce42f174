package debuginfo

import (
	"context"
	"crypto/rand"
	"io"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/coral-mesh/profilestore/internal/debuginfod"
	"github.com/coral-mesh/profilestore/internal/metastore"
	"github.com/coral-mesh/profilestore/internal/objectstore"
	"github.com/coral-mesh/profilestore/internal/xerrors"
)

// BuildIDType classifies the build-id's origin (spec §6).
type BuildIDType string

const (
	BuildIDUnspecified BuildIDType = "UNSPECIFIED"
	BuildIDGNU         BuildIDType = "GNU"
	BuildIDGo          BuildIDType = "GO"
	BuildIDHash        BuildIDType = "HASH"
)

// UploadStrategy is the transport the client should use for the upload
// (spec §6). Only GRPC streaming is implemented here.
type UploadStrategy string

const (
	StrategyGRPC      UploadStrategy = "GRPC"
	StrategySignedURL UploadStrategy = "SIGNED_URL"
)

// ShouldInitiateDecision is the response of ShouldInitiateUpload.
type ShouldInitiateDecision struct {
	Should bool
	Reason Reason
}

// InitiateResult is the response of InitiateUpload.
type InitiateResult struct {
	UploadID string
	BuildID  string
	Strategy UploadStrategy
	Kind     metastore.Kind
}

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// Machine implements C9: the debuginfo upload state machine over the
// metadata store, debuginfod client, and upload bucket.
type Machine struct {
	metadata          *metastore.Store
	debuginfod        *debuginfod.Client
	bucket            objectstore.Store
	maxUploadSize     int64
	maxUploadDuration time.Duration
	now               Clock
	logger            zerolog.Logger
}

// New creates a Machine.
func New(metadata *metastore.Store, client *debuginfod.Client, bucket objectstore.Store, maxUploadSize int64, maxUploadDuration time.Duration, logger zerolog.Logger) *Machine {
	return &Machine{
		metadata:          metadata,
		debuginfod:        client,
		bucket:            bucket,
		maxUploadSize:     maxUploadSize,
		maxUploadDuration: maxUploadDuration,
		now:               time.Now,
		logger:            logger.With().Str("component", "debuginfo_upload").Logger(),
	}
}

// ShouldInitiateUpload implements the decision table of spec §4.9.
func (m *Machine) ShouldInitiateUpload(ctx context.Context, buildID, hash string, force bool, kind metastore.Kind, idType BuildIDType) (ShouldInitiateDecision, error) {
	rec, ok := m.metadata.Fetch(buildID, kind)
	if !ok {
		if idType == BuildIDGNU || idType == BuildIDUnspecified {
			if servers := m.debuginfod.Exists(ctx, buildID); len(servers) > 0 {
				if err := m.metadata.MarkDebuginfod(buildID, kind, servers); err != nil {
					return ShouldInitiateDecision{}, err
				}
				return ShouldInitiateDecision{Should: false, Reason: ReasonInDebuginfod}, nil
			}
		}
		return ShouldInitiateDecision{Should: true, Reason: ReasonFirstTime}, nil
	}

	switch rec.Source {
	case metastore.SourceDebuginfod:
		if rec.Quality != nil && rec.Quality.NotValidELF {
			return ShouldInitiateDecision{Should: true, Reason: ReasonDebuginfodInvalid}, nil
		}
		return ShouldInitiateDecision{Should: true, Reason: ReasonDebuginfodSource}, nil

	case metastore.SourceUpload:
		if rec.Upload == nil {
			return ShouldInitiateDecision{Should: true, Reason: ReasonFirstTime}, nil
		}
		switch rec.Upload.State {
		case metastore.UploadStateUploading:
			if metastore.IsUploadStale(rec.Upload.StartedAt, m.now(), m.maxUploadDuration) {
				return ShouldInitiateDecision{Should: true, Reason: ReasonUploadStale}, nil
			}
			return ShouldInitiateDecision{Should: false, Reason: ReasonUploadInProgress}, nil

		case metastore.UploadStateUploaded:
			invalid := rec.Quality != nil && rec.Quality.NotValidELF
			if invalid {
				if force {
					return ShouldInitiateDecision{Should: true, Reason: ReasonAlreadyExistsButForced}, nil
				}
				return ShouldInitiateDecision{Should: false, Reason: ReasonAlreadyExists}, nil
			}
			switch {
			case hash == "":
				return ShouldInitiateDecision{Should: true, Reason: ReasonDebuginfoInvalid}, nil
			case hash == rec.Upload.Hash:
				return ShouldInitiateDecision{Should: false, Reason: ReasonEqual}, nil
			default:
				return ShouldInitiateDecision{Should: true, Reason: ReasonNotEqual}, nil
			}
		}
	}

	return ShouldInitiateDecision{Should: true, Reason: ReasonFirstTime}, nil
}

// InitiateUpload validates preconditions and allocates a fresh upload
// session, per spec §4.9.
func (m *Machine) InitiateUpload(ctx context.Context, buildID, hash string, size int64, force bool, kind metastore.Kind, idType BuildIDType) (InitiateResult, error) {
	if hash == "" {
		return InitiateResult{}, xerrors.New(xerrors.MalformedInput, "debuginfo: hash is required")
	}
	if size <= 0 {
		return InitiateResult{}, xerrors.New(xerrors.MalformedInput, "debuginfo: size must be positive")
	}
	if size > m.maxUploadSize {
		return InitiateResult{}, xerrors.New(xerrors.MalformedInput, "debuginfo: size %d exceeds max_upload_size %d", size, m.maxUploadSize)
	}

	decision, err := m.ShouldInitiateUpload(ctx, buildID, hash, force, kind, idType)
	if err != nil {
		return InitiateResult{}, err
	}
	if !decision.Should {
		if decision.Reason == ReasonEqual {
			return InitiateResult{}, xerrors.New(xerrors.AlreadyExists, "ALREADY_EXISTS: %s", buildID)
		}
		return InitiateResult{}, xerrors.New(xerrors.FailedPrecondition, "FAILED_PRECONDITION: %s", decision.Reason)
	}

	uploadID := newUploadID()
	if err := m.metadata.MarkUploading(buildID, kind, uploadID, hash, m.now()); err != nil {
		return InitiateResult{}, err
	}

	return InitiateResult{UploadID: uploadID, BuildID: buildID, Strategy: StrategyGRPC, Kind: kind}, nil
}

// UploadHeader is the first message of an Upload stream.
type UploadHeader struct {
	BuildID  string
	UploadID string
	Kind     metastore.Kind
}

// UploadResult is the response of a completed Upload stream.
type UploadResult struct {
	BuildID string
	Size    int
}

// Upload validates header against the metadata store, concatenates the
// chunk reader's bytes, and writes them to the bucket at key=upload id
// (spec §4.9).
func (m *Machine) Upload(ctx context.Context, header UploadHeader, chunks io.Reader) (UploadResult, error) {
	rec, ok := m.metadata.Fetch(header.BuildID, header.Kind)
	if !ok {
		return UploadResult{}, xerrors.New(xerrors.NotFound, "NOT_FOUND: no record for %s", header.BuildID)
	}
	if rec.Upload == nil || rec.Upload.ID != header.UploadID {
		return UploadResult{}, xerrors.New(xerrors.FailedPrecondition, "upload id mismatch for %s", header.BuildID)
	}
	if rec.Upload.State != metastore.UploadStateUploading {
		return UploadResult{}, xerrors.New(xerrors.FailedPrecondition, "WRONG_STATE: %s is not UPLOADING", header.BuildID)
	}

	data, err := io.ReadAll(chunks)
	if err != nil {
		return UploadResult{}, xerrors.Wrap(xerrors.Internal, err, "read upload chunks for %s", header.BuildID)
	}

	if err := m.bucket.Put(ctx, header.UploadID, data); err != nil {
		return UploadResult{}, err
	}

	return UploadResult{BuildID: header.BuildID, Size: len(data)}, nil
}

// MarkUploadFinished transitions UPLOADING -> UPLOADED with finished_at=now.
func (m *Machine) MarkUploadFinished(buildID string, kind metastore.Kind, uploadID string) error {
	return m.metadata.MarkUploaded(buildID, kind, uploadID, m.now())
}

// SetClock overrides the machine's time source; used by tests.
func (m *Machine) SetClock(clock Clock) {
	m.now = clock
}

func newUploadID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}
