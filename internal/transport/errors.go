package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrTransient = errors.New("transient failure")
	ErrConflict  = errors.New("conflict")
	ErrInvalid   = errors.New("invalid request")
)

// StatusError is a failed call with the server's status code. It matches
// the sentinel for its code with errors.Is.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

func (e *StatusError) Unwrap() error {
	return KindOf(e.Code)
}

// KindOf maps an HTTP status code to an error sentinel. It returns nil for
// codes that do not match one.
func KindOf(code int) error {
	switch {
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusConflict:
		return ErrConflict
	case code == http.StatusBadRequest, code == http.StatusUnprocessableEntity:
		return ErrInvalid
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout, code >= 500:
		return ErrTransient
	}
	return nil
}

type transientError struct{ err error }

func (e transientError) Error() string   { return e.err.Error() }
func (e transientError) Unwrap() []error { return []error{e.err, ErrTransient} }

// Classify marks network failures and timeouts as ErrTransient. Other errors
// are returned unchanged.
func Classify(err error) error {
	if err == nil || errors.Is(err, ErrTransient) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return transientError{err: err}
	}
	return err
}

// Retryable reports whether repeating the call may succeed.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransient)
}
