package backend

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized matches a 401/403 response.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound matches a 404 response.
	ErrNotFound = errors.New("not found")
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Op   string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: server returned %d %s", e.Op, e.Code, http.StatusText(e.Code))
}

func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden
	case ErrNotFound:
		return e.Code == http.StatusNotFound
	}
	return false
}

// IsStatus reports whether err came from a server response rather than the transport.
func IsStatus(err error) bool {
	var se *StatusError
	return errors.As(err, &se)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}
