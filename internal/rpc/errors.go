package rpc

import (
	"context"
	"errors"
	"fmt"

	"dsf/internal/domain"
)

// Envelope and correlation errors.
var (
	ErrUnknownKind        = errors.New("unknown message kind")
	ErrMalformedEnvelope  = errors.New("malformed envelope")
	ErrUnexpectedResponse = errors.New("unexpected response")
	ErrDuplicateRequest   = errors.New("duplicate request id")
	ErrClosed             = errors.New("connection closed")
)

// UnknownKindError names a kind outside the closed set. It matches
// ErrUnknownKind under errors.Is.
type UnknownKindError struct {
	Name    string
	Request bool
}

func (e *UnknownKindError) Error() string {
	if e.Request {
		return fmt.Sprintf("%v: request %q", ErrUnknownKind, e.Name)
	}
	return fmt.Sprintf("%v: response %q", ErrUnknownKind, e.Name)
}

func (e *UnknownKindError) Is(target error) bool { return target == ErrUnknownKind }

// Error codes carried by the Error response.
const (
	CodeInvalidIdentifier   = "invalid_identifier"
	CodeNotFound            = "not_found"
	CodeTimeout             = "timeout"
	CodeKeyMismatch         = "key_mismatch"
	CodeMalformed           = "malformed"
	CodeInvalidAddress      = "invalid_address"
	CodePeerBlocked         = "peer_blocked"
	CodeInvalidServiceState = "invalid_service_state"
	CodeNotOrigin           = "not_origin"
	CodeNoSecretKey         = "no_secret_key"
	CodeInvalidSubscription = "invalid_subscription"
	CodeSubscriptionExpired = "subscription_expired"
	CodeInvalidName         = "invalid_name"
	CodeInvalidTimeRange    = "invalid_time_range"
	CodeUnimplemented       = "unimplemented"
	CodeInternal            = "internal"
)

var codeErrors = []struct {
	code string
	err  error
}{
	{CodeInvalidIdentifier, domain.ErrInvalidIdentifier},
	{CodeNotFound, domain.ErrNotFound},
	{CodeTimeout, domain.ErrTimeout},
	{CodeKeyMismatch, domain.ErrKeyMismatch},
	{CodeMalformed, domain.ErrMalformed},
	{CodeInvalidAddress, domain.ErrInvalidAddress},
	{CodePeerBlocked, domain.ErrPeerBlocked},
	{CodeInvalidServiceState, domain.ErrInvalidServiceState},
	{CodeNotOrigin, domain.ErrNotOrigin},
	{CodeNoSecretKey, domain.ErrNoSecretKey},
	{CodeInvalidSubscription, domain.ErrInvalidSubscription},
	{CodeSubscriptionExpired, domain.ErrSubscriptionExpired},
	{CodeInvalidName, domain.ErrInvalidName},
	{CodeInvalidTimeRange, domain.ErrInvalidTimeRange},
	{CodeMalformed, ErrMalformedEnvelope},
	{CodeUnimplemented, ErrUnknownKind},
}

// Error is the daemon-side failure carried back as a response. It unwraps to
// the matching domain sentinel so callers can use errors.Is.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewError converts a daemon-side error to its wire form.
func NewError(err error) Error {
	if err == nil {
		return Error{Code: CodeInternal, Message: "unknown error"}
	}

	var wire Error
	if errors.As(err, &wire) {
		return wire
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Error{Code: CodeTimeout, Message: err.Error()}
	}
	for _, ce := range codeErrors {
		if errors.Is(err, ce.err) {
			return Error{Code: ce.code, Message: err.Error()}
		}
	}
	return Error{Code: CodeInternal, Message: err.Error()}
}

func (e Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Message
}

// Unwrap returns the domain sentinel for the code, if any.
func (e Error) Unwrap() error {
	for _, ce := range codeErrors {
		if ce.code == e.Code {
			return ce.err
		}
	}
	return nil
}

// Retryable reports whether a failed request may be resent as is.
// Timeouts are retryable only for requests that do not mutate state.
func Retryable(kind RequestKind, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrTimeout) || errors.Is(err, ErrClosed) {
		return !Mutating(kind)
	}
	return false
}
