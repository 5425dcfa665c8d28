package client

import (
	"errors"

	"dsf/internal/domain"
	"dsf/internal/grpc/control"
	"dsf/internal/rpc"
)

// Common client errors
var (
	// ErrNotConnected indicates Connect has not succeeded.
	ErrNotConnected = errors.New("client not connected")

	// ErrConnectionFailed indicates all connection attempts failed.
	ErrConnectionFailed = errors.New("connection failed")
)

// IsUnavailable reports whether err means the daemon could not be reached.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrConnectionFailed) ||
		errors.Is(err, ErrNotConnected) ||
		errors.Is(err, rpc.ErrClosed)
}

// IsTimeout reports whether err is a request timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, domain.ErrTimeout)
}

// retryable reports whether req may be resent after err. A refused stream
// never reached the daemon, so it is always safe to resend.
func retryable(kind rpc.RequestKind, err error) bool {
	var re *control.RetryError
	if errors.As(err, &re) {
		return true
	}
	return rpc.Retryable(kind, err)
}
