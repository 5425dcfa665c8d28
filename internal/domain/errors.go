package domain

import "errors"

// Domain errors
var (
	// Resolution errors
	ErrInvalidIdentifier = errors.New("invalid identifier: neither id nor index given")
	ErrNotFound          = errors.New("not found")
	ErrMalformed         = errors.New("malformed value")

	// Peer errors
	ErrKeyMismatch     = errors.New("peer public key mismatch")
	ErrInvalidAddress  = errors.New("invalid address")
	ErrPeerBlocked     = errors.New("peer is blocked")
	ErrInvalidPeerKind = errors.New("invalid peer address kind")

	// Service errors
	ErrInvalidServiceState = errors.New("invalid service state")
	ErrNotOrigin           = errors.New("service is not owned by this node")
	ErrNoSecretKey         = errors.New("service has no secret key")

	// Subscription errors
	ErrInvalidSubscription = errors.New("invalid subscription")
	ErrSubscriptionExpired = errors.New("subscription expired")

	// Name service errors
	ErrInvalidName = errors.New("invalid name")

	// Bounds errors
	ErrInvalidTimeRange = errors.New("until is before from")

	// Transport errors
	ErrTimeout = errors.New("operation timed out")
)
