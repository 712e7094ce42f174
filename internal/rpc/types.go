package rpc

import (
	"github.com/coral-mesh/profilestore/internal/debuginfo"
	"github.com/coral-mesh/profilestore/internal/metastore"
	"github.com/coral-mesh/profilestore/internal/normalizer"
)

// writeRawRequest is the JSON wire shape of spec §6's WriteRaw RPC.
// RawProfile is base64-encoded by encoding/json's []byte handling, the
// same way a generated protobuf client would carry `bytes` fields over
// JSON transcoding.
type writeRawRequest struct {
	Series []seriesDTO `json:"series"`
}

type seriesDTO struct {
	Labels  []labelDTO  `json:"labels"`
	Samples []sampleDTO `json:"samples"`
}

type labelDTO struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type sampleDTO struct {
	RawProfile     []byte          `json:"raw_profile"`
	ExecutableInfo []execInfoDTO   `json:"executable_info,omitempty"`
}

type execInfoDTO struct {
	Address uint64 `json:"address"`
	BuildID string `json:"build_id"`
	File    string `json:"file"`
	Start   uint64 `json:"start"`
	End     uint64 `json:"end"`
	Offset  uint64 `json:"offset"`
}

func (r writeRawRequest) toDomain() []normalizer.Series {
	out := make([]normalizer.Series, len(r.Series))
	for i, s := range r.Series {
		labels := make([]normalizer.Label, len(s.Labels))
		for j, l := range s.Labels {
			labels[j] = normalizer.Label{Name: l.Name, Value: l.Value}
		}
		samples := make([]normalizer.Sample, len(s.Samples))
		for j, smp := range s.Samples {
			info := make([]normalizer.ExecutableMapping, len(smp.ExecutableInfo))
			for k, ei := range smp.ExecutableInfo {
				info[k] = normalizer.ExecutableMapping{
					Address: ei.Address,
					BuildID: ei.BuildID,
					File:    ei.File,
					Start:   ei.Start,
					End:     ei.End,
					Offset:  ei.Offset,
				}
			}
			samples[j] = normalizer.Sample{RawProfile: smp.RawProfile, ExecutableInfo: info}
		}
		out[i] = normalizer.Series{Labels: labels, Samples: samples}
	}
	return out
}

// queryRequest is the JSON wire shape of spec §6's Query RPC. The
// response body is the raw gzip-compressed pprof document itself, not
// JSON (spec §4.14 "must not return raw protobuf bytes wrapped in
// another envelope").
type queryRequest struct {
	QueryString string `json:"query_string"`
	TimestampMs int64  `json:"timestamp_ms"`
}

type shouldInitiateUploadRequest struct {
	BuildID     string          `json:"build_id"`
	Hash        string          `json:"hash"`
	Force       bool            `json:"force"`
	Kind        metastore.Kind  `json:"kind"`
	BuildIDType debuginfo.BuildIDType `json:"build_id_type"`
}

type shouldInitiateUploadResponse struct {
	Should bool             `json:"should"`
	Reason debuginfo.Reason `json:"reason"`
}

type initiateUploadRequest struct {
	BuildID     string                `json:"build_id"`
	Hash        string                `json:"hash"`
	Size        int64                 `json:"size"`
	Force       bool                  `json:"force"`
	Kind        metastore.Kind        `json:"kind"`
	BuildIDType debuginfo.BuildIDType `json:"build_id_type"`
}

type initiateUploadResponse struct {
	UploadID string                  `json:"upload_id"`
	BuildID  string                  `json:"build_id"`
	Strategy debuginfo.UploadStrategy `json:"strategy"`
	Kind     metastore.Kind          `json:"kind"`
}

type uploadResponse struct {
	BuildID string `json:"build_id"`
	Size    int    `json:"size"`
}

type markUploadFinishedRequest struct {
	BuildID  string         `json:"build_id"`
	Kind     metastore.Kind `json:"kind"`
	UploadID string         `json:"upload_id"`
}

// errorResponse is the JSON body returned alongside a non-2xx status.
type errorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
