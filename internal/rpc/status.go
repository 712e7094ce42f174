package rpc

import (
	"net/http"

	"github.com/coral-mesh/profilestore/internal/xerrors"
)

// statusFor maps a xerrors.Kind to the HTTP status code an RPC handler
// responds with (spec §7's taxonomy, translated onto net/http since no
// connect/grpc status machinery is available in this stack — see
// DESIGN.md "Dropped dependencies").
func statusFor(err error) int {
	switch xerrors.KindOf(err) {
	case xerrors.MalformedInput:
		return http.StatusBadRequest
	case xerrors.InvariantViolation:
		return http.StatusUnprocessableEntity
	case xerrors.NotFound:
		return http.StatusNotFound
	case xerrors.FailedPrecondition:
		return http.StatusPreconditionFailed
	case xerrors.AlreadyExists:
		return http.StatusConflict
	case xerrors.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
