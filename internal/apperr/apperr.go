package apperr

import (
	"errors"
	"net/http"
)

// Error kinds shared by every layer. Wrap them with fmt.Errorf("...: %w", ErrX).
var (
	ErrNotFound     = errors.New("item not found")
	ErrConflict     = errors.New("item already exists")
	ErrNotAllowed   = errors.New("action not allowed")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")

	ErrUnauthenticated = errors.New("not authenticated")
)

// Status maps an error to its HTTP status code.
// Conflicts share the 400 class with other rejected input.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrConflict):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the stable client-facing message for an error.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "Item not found."
	case errors.Is(err, ErrUnauthenticated):
		return "Not authenticated."
	case errors.Is(err, ErrNotAllowed):
		return "Action not allowed."
	case errors.Is(err, ErrConflict):
		return "Item already exists."
	case errors.Is(err, ErrInvalidInput):
		return "The request was invalid."
	default:
		return "An internal error occurred."
	}
}

// Detail returns the detail string shown to clients. Not-found and permission
// errors always carry their text; everything else is redacted unless trusted.
func Detail(err error, trusted bool) string {
	if err == nil {
		return ""
	}
	if trusted || errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotAllowed) || errors.Is(err, ErrUnauthenticated) {
		return err.Error()
	}
	return Message(err)
}
