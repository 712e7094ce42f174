package rpc

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/coral-mesh/profilestore/internal/debuginfo"
	"github.com/coral-mesh/profilestore/internal/metastore"
	"github.com/coral-mesh/profilestore/internal/normalizer"
	"github.com/coral-mesh/profilestore/internal/pprofwriter"
	"github.com/coral-mesh/profilestore/internal/xerrors"
)

func writeError(w http.ResponseWriter, logger func(string, error), err error) {
	status := statusFor(err)
	if logger != nil && status == http.StatusInternalServerError {
		logger("rpc: internal error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Kind:    string(xerrors.KindOf(err)),
		Message: err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// HandleWriteRaw implements spec §6 WriteRaw: decode every raw pprof
// sample in the request, normalize it into columnar rows, and hand the
// batch to the ingester. Normalization happens synchronously; ingestion
// itself never blocks on persistence (spec §5).
func (s *Service) HandleWriteRaw(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req writeRawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, nil, xerrors.Wrap(xerrors.MalformedInput, err, "MALFORMED_REQUEST: decode write_raw body"))
		return
	}

	var rows []normalizer.Row
	for _, series := range req.toDomain() {
		profiles, err := normalizer.NormalizeSeries(series)
		if err != nil {
			writeError(w, s.logErr, err)
			return
		}
		for _, np := range profiles {
			rows = append(rows, np.Rows...)
		}
	}

	s.Ingester.Ingest(r.Context(), rows)
	writeJSON(w, http.StatusOK, struct{}{})
}

// HandleQuery implements spec §6 Query: select_single against the DAL,
// symbolize the aggregated stacktraces (C13), and reconstruct a
// gzip-compressed pprof document (C14) as the raw response body.
func (s *Service) HandleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	switch r.Method {
	case http.MethodGet:
		req.QueryString = r.URL.Query().Get("query_string")
		req.TimestampMs, _ = strconv.ParseInt(r.URL.Query().Get("timestamp_ms"), 10, 64)
	case http.MethodPost:
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, nil, xerrors.Wrap(xerrors.MalformedInput, err, "MALFORMED_REQUEST: decode query body"))
			return
		}
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result, err := s.DAL.SelectSingle(r.Context(), req.QueryString, req.TimestampMs)
	if err != nil {
		writeError(w, s.logErr, err)
		return
	}

	resolved, err := s.Resolver.ResolveBatch(r.Context(), result.Rows)
	if err != nil {
		writeError(w, s.logErr, err)
		return
	}

	out, err := pprofwriter.Write(pprofwriter.Meta{
		Name:        result.Meta.Name,
		SampleType:  result.Meta.SampleType,
		SampleUnit:  result.Meta.SampleUnit,
		PeriodType:  result.Meta.PeriodType,
		PeriodUnit:  result.Meta.PeriodUnit,
		TimestampMs: result.TimestampMs,
	}, resolved)
	if err != nil {
		writeError(w, s.logErr, xerrors.Wrap(xerrors.Internal, err, "reconstruct pprof document"))
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Encoding", "gzip")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

// HandleShouldInitiateUpload implements spec §6 ShouldInitiateUpload.
func (s *Service) HandleShouldInitiateUpload(w http.ResponseWriter, r *http.Request) {
	var req shouldInitiateUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, nil, xerrors.Wrap(xerrors.MalformedInput, err, "MALFORMED_REQUEST: decode should_initiate_upload body"))
		return
	}

	decision, err := s.Uploads.ShouldInitiateUpload(r.Context(), req.BuildID, req.Hash, req.Force, req.Kind, req.BuildIDType)
	if err != nil {
		writeError(w, s.logErr, err)
		return
	}
	writeJSON(w, http.StatusOK, shouldInitiateUploadResponse{Should: decision.Should, Reason: decision.Reason})
}

// HandleInitiateUpload implements spec §6 InitiateUpload.
func (s *Service) HandleInitiateUpload(w http.ResponseWriter, r *http.Request) {
	var req initiateUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, nil, xerrors.Wrap(xerrors.MalformedInput, err, "MALFORMED_REQUEST: decode initiate_upload body"))
		return
	}

	result, err := s.Uploads.InitiateUpload(r.Context(), req.BuildID, req.Hash, req.Size, req.Force, req.Kind, req.BuildIDType)
	if err != nil {
		writeError(w, s.logErr, err)
		return
	}
	writeJSON(w, http.StatusOK, initiateUploadResponse{
		UploadID: result.UploadID,
		BuildID:  result.BuildID,
		Strategy: result.Strategy,
		Kind:     result.Kind,
	})
}

// HandleUpload implements spec §6 Upload. The spec models Upload as a
// client-streaming RPC (a header message followed by chunk messages);
// over plain HTTP that degrades naturally to one chunked POST whose
// header fields travel as query parameters and whose body is the
// concatenated chunk stream, read straight through to
// debuginfo.Machine.Upload without buffering it twice.
func (s *Service) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	header := debuginfo.UploadHeader{
		BuildID:  q.Get("build_id"),
		UploadID: q.Get("upload_id"),
		Kind:     metastore.Kind(q.Get("kind")),
	}

	result, err := s.Uploads.Upload(r.Context(), header, r.Body)
	if err != nil {
		writeError(w, s.logErr, err)
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{BuildID: result.BuildID, Size: result.Size})
}

// HandleMarkUploadFinished implements spec §6 MarkUploadFinished.
func (s *Service) HandleMarkUploadFinished(w http.ResponseWriter, r *http.Request) {
	var req markUploadFinishedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, nil, xerrors.Wrap(xerrors.MalformedInput, err, "MALFORMED_REQUEST: decode mark_upload_finished body"))
		return
	}

	if err := s.Uploads.MarkUploadFinished(req.BuildID, req.Kind, req.UploadID); err != nil {
		writeError(w, s.logErr, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Service) logErr(msg string, err error) {
	s.Logger.Error().Err(err).Msg(msg)
}
