package remote

import (
	"errors"
	"fmt"
)

// ErrDecode marks a response body that could not be decoded.
var ErrDecode = errors.New("remote: decode response")

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
	RequestID  string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("remote: %s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("remote: %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// NotFound reports whether the remote store answered 404.
func (e *StatusError) NotFound() bool {
	return e.StatusCode == 404
}

// IsNotFound reports whether err carries a 404 StatusError.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.NotFound()
}
