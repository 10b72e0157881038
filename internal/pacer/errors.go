package pacer

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
)

// ErrTransient marks an error as retryable when wrapped with %w.
var ErrTransient = errors.New("transient failure")

// permanentError stops a [Pacer] from retrying an otherwise transient error.
type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not retryable. The original error stays reachable through errors.Is.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was marked with [Permanent].
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

var retriableErrnos = []syscall.Errno{
	syscall.EPIPE,
	syscall.ETIMEDOUT,
	syscall.ECONNREFUSED,
	syscall.ECONNRESET,
	syscall.ECONNABORTED,
	syscall.EHOSTUNREACH,
	syscall.ENETUNREACH,
}

// IsTransient reports whether err is a connection failure or a socket timeout.
// Cancellation of the caller's context is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	for _, errno := range retriableErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
