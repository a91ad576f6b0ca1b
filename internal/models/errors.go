package models

import (
	"errors"
	"net/http"
)

// Error kinds shared by every component. Wrap them with fmt.Errorf("%w: ...")
// and test with errors.Is.
var (
	// ErrValidation marks a malformed or incomplete payload.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks an unknown worker nickname or account id.
	ErrNotFound = errors.New("not found")
	// ErrUnreachable marks a transport-level failure reaching a peer.
	ErrUnreachable = errors.New("unreachable")
	// ErrConflict marks a uniqueness violation.
	ErrConflict = errors.New("conflict")
)

// HTTPStatus maps an error kind to the status code returned at the RPC boundary
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
