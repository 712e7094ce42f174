// Package rpc wires the profiling backend's external interfaces (spec
// §6: WriteRaw, Query, ShouldInitiateUpload, InitiateUpload, Upload,
// MarkUploadFinished) onto plain net/http.
//
// The teacher's own Colony service speaks connectrpc.com/connect, but
// every connect handler it registers is backed by a generated
// protobuf/connect-stub package (coral/agent/v1/agentv1connect and
// friends) that ships nowhere in this module's dependency surface —
// only the .proto-derived Go is missing, not a library. Hand-authoring
// that generated code would mean fabricating a dependency rather than
// using one, so this package instead follows the teacher's OTHER real
// HTTP surface, internal/colony/httpapi.Server: a plain http.ServeMux
// wrapped in h2c for cleartext HTTP/2, JSON request/response bodies
// instead of protobuf ones.
package rpc

import (
	"github.com/rs/zerolog"

	"github.com/coral-mesh/profilestore/internal/dal"
	"github.com/coral-mesh/profilestore/internal/debuginfo"
	"github.com/coral-mesh/profilestore/internal/ingester"
	"github.com/coral-mesh/profilestore/internal/pprofwriter"
	"github.com/coral-mesh/profilestore/internal/resolver"
)

// Service holds the domain components an RPC handler dispatches to.
type Service struct {
	Ingester *ingester.Ingester
	DAL      *dal.DAL
	Resolver *resolver.Resolver
	Uploads  *debuginfo.Machine
	Logger   zerolog.Logger
}
