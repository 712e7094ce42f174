// Package debuginfo implements C6 (the raw-ELF fetcher) and C9 (the upload
// state machine) from spec §4.6 and §4.9.
package debuginfo

import (
	"context"

	"github.com/coral-mesh/profilestore/internal/debuginfod"
	"github.com/coral-mesh/profilestore/internal/metastore"
	"github.com/coral-mesh/profilestore/internal/objectstore"
	"github.com/coral-mesh/profilestore/internal/xerrors"
)

// Fetcher returns raw ELF bytes for a build-id, consulting the upload
// bucket or the debuginfod client based on the record's recorded source
// (C6, spec §4.6).
type Fetcher struct {
	bucket     objectstore.Store
	debuginfod *debuginfod.Client
}

// NewFetcher creates a Fetcher.
func NewFetcher(bucket objectstore.Store, client *debuginfod.Client) *Fetcher {
	return &Fetcher{bucket: bucket, debuginfod: client}
}

// FetchRawELF dispatches on rec.Source per spec §4.6.
func (f *Fetcher) FetchRawELF(ctx context.Context, rec metastore.Record) ([]byte, error) {
	switch rec.Source {
	case metastore.SourceUpload:
		if rec.Upload == nil {
			return nil, xerrors.New(xerrors.Internal, "debuginfo: UPLOAD record missing upload info for %s", rec.BuildID)
		}
		return f.bucket.Get(ctx, rec.Upload.ID)
	case metastore.SourceDebuginfod:
		if len(rec.DebuginfodServers) == 0 {
			return nil, xerrors.New(xerrors.Unavailable, "debuginfo: no debuginfod servers recorded for %s", rec.BuildID)
		}
		return f.debuginfod.Get(ctx, rec.DebuginfodServers[0], rec.BuildID)
	default:
		return nil, xerrors.New(xerrors.Internal, "UNSUPPORTED_SOURCE: %q", rec.Source)
	}
}
