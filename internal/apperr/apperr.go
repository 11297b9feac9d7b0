package apperr

import (
	"errors"
	"net/http"
)

// Error kinds shared by every component. Wrap them with fmt.Errorf("%w: ...")
// to add context and match with errors.Is.
var (
	ErrValidation        = errors.New("validation error")
	ErrInvalidState      = errors.New("invalid state")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrConflict          = errors.New("conflict")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
)

// HTTPStatus maps an error to the status code returned at the API boundary.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// IsDomain reports whether err is one of the caller-recoverable kinds above.
func IsDomain(err error) bool {
	return HTTPStatus(err) != http.StatusInternalServerError
}
