package rpc

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"dsf/internal/domain"
)

func TestNewError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"invalid identifier", domain.ErrInvalidIdentifier, CodeInvalidIdentifier},
		{"wrapped not found", fmt.Errorf("resolve: %w", domain.ErrNotFound), CodeNotFound},
		{"key mismatch", domain.ErrKeyMismatch, CodeKeyMismatch},
		{"deadline", context.DeadlineExceeded, CodeTimeout},
		{"timeout", domain.ErrTimeout, CodeTimeout},
		{"unknown kind", ErrUnknownKind, CodeUnimplemented},
		{"other", errors.New("disk on fire"), CodeInternal},
		{"already wire", Error{Code: CodeNotOrigin, Message: "x"}, CodeNotOrigin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewError(tt.err)
			if got.Code != tt.code {
				t.Errorf("NewError(%v).Code = %s, want %s", tt.err, got.Code, tt.code)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	e := Error{Code: CodeKeyMismatch, Message: "peer abc"}
	if !errors.Is(e, domain.ErrKeyMismatch) {
		t.Error("expected errors.Is to match ErrKeyMismatch")
	}
	if errors.Unwrap(Error{Code: CodeInternal}) != nil {
		t.Error("internal code should not unwrap")
	}
}

func TestRetryable(t *testing.T) {
	timeout := fmt.Errorf("%w: request 1", domain.ErrTimeout)

	tests := []struct {
		name string
		kind RequestKind
		err  error
		want bool
	}{
		{"read after timeout", PeerList{}, timeout, true},
		{"locate after timeout", ServiceSearch{}, timeout, true},
		{"register after timeout", ServiceRegister{}, timeout, false},
		{"publish after timeout", DataPublish{}, timeout, false},
		{"not found", PeerGet{}, domain.ErrNotFound, false},
		{"invalid identifier", PeerGet{}, domain.ErrInvalidIdentifier, false},
		{"nil", Status{}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retryable(tt.kind, tt.err); got != tt.want {
				t.Errorf("Retryable() = %v, want %v", got, tt.want)
			}
		})
	}
}
