package control

import (
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"dsf/internal/domain"
	"dsf/internal/rpc"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestStatusRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     codes.Code
		sentinel error
	}{
		{"not found", fmt.Errorf("service x: %w", domain.ErrNotFound), codes.NotFound, domain.ErrNotFound},
		{"invalid identifier", domain.ErrInvalidIdentifier, codes.InvalidArgument, domain.ErrInvalidIdentifier},
		{"key mismatch", domain.ErrKeyMismatch, codes.FailedPrecondition, domain.ErrKeyMismatch},
		{"timeout", domain.ErrTimeout, codes.DeadlineExceeded, domain.ErrTimeout},
		{"unknown kind", rpc.ErrUnknownKind, codes.Unimplemented, rpc.ErrUnknownKind},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := Status(tt.err)
			if got := status.Code(st); got != tt.code {
				t.Fatalf("code = %v, want %v", got, tt.code)
			}
			back := FromStatus(st)
			if !errors.Is(back, tt.sentinel) {
				t.Errorf("FromStatus(%v) = %v, does not match %v", st, back, tt.sentinel)
			}
		})
	}
}

func TestStatusPassesThroughStatusErrors(t *testing.T) {
	in := status.Error(codes.Unavailable, "going away")
	if out := Status(in); out != in {
		t.Errorf("Status rewrote an existing status error: %v", out)
	}
	if Status(nil) != nil {
		t.Error("Status(nil) must be nil")
	}
}

func TestRateLimited(t *testing.T) {
	err := FromStatus(RateLimited(250 * time.Millisecond))
	var re *RetryError
	if !errors.As(err, &re) {
		t.Fatalf("FromStatus = %T %v, want *RetryError", err, err)
	}
	if re.Delay != 250*time.Millisecond {
		t.Errorf("delay = %v", re.Delay)
	}
}

func TestFromStatusTransportCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"eof", io.EOF, rpc.ErrClosed},
		{"unavailable", status.Error(codes.Unavailable, "down"), rpc.ErrClosed},
		{"canceled", status.Error(codes.Canceled, "bye"), rpc.ErrClosed},
		{"deadline", status.Error(codes.DeadlineExceeded, "slow"), domain.ErrTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromStatus(tt.err); !errors.Is(got, tt.want) {
				t.Errorf("FromStatus(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
