package backend

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/pkg/errors"
)

// ErrUnauthorized is returned for any HTTP 401, whatever the body says.
var ErrUnauthorized = errors.New("unauthorized")

// StatusError is a non-2xx response other than 401.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error: %d %s - %s", e.Code, http.StatusText(e.Code), e.Body)
}

// NetworkError means the backend could not be reached or did not answer in time.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Timeout reports whether the request ran out of time.
func (e *NetworkError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// CheckAuth turns a 401 status failure into ErrUnauthorized and passes every
// other error through unchanged.
func CheckAuth(err error) error {
	if err == nil {
		return nil
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Code == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return err
}

// IsUnauthorized reports whether err carries the 401 signal.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
