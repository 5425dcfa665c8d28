package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"dsf/internal/domain"
	"dsf/internal/grpc/client"
	"dsf/internal/rpc"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code Code
		exit int
	}{
		{"daemon not found", rpc.NewError(fmt.Errorf("%w: service #4", domain.ErrNotFound)), CodeNotFound, ExitNotFound},
		{"local malformed", fmt.Errorf("parse: %w", domain.ErrMalformed), CodeValidation, ExitUsage},
		{"identifier", rpc.NewError(domain.ErrInvalidIdentifier), CodeValidation, ExitUsage},
		{"not origin", rpc.NewError(domain.ErrNotOrigin), CodeConflict, ExitConflict},
		{"blocked", rpc.NewError(domain.ErrPeerBlocked), CodeConflict, ExitConflict},
		{"timeout", rpc.NewError(context.DeadlineExceeded), CodeTimeout, ExitTimeout},
		{"unavailable", fmt.Errorf("dial: %w", client.ErrConnectionFailed), CodeConnectionFailed, ExitConnection},
		{"cancelled", context.Canceled, CodeUserCancelled, ExitCancelled},
		{"unknown kind", &rpc.UnknownKindError{Name: "peer.teleport", Request: true}, CodeUnsupported, ExitFailure},
		{"other", errors.New("boom"), CodeUnknown, ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rich := Classify(tt.err)
			if rich.Code != tt.code {
				t.Errorf("code = %s, want %s", rich.Code, tt.code)
			}
			if got := ExitCode(tt.err); got != tt.exit {
				t.Errorf("exit = %d, want %d", got, tt.exit)
			}
		})
	}
}

func TestClassify_KeepsRich(t *testing.T) {
	orig := ConfigInvalid("/tmp/dsf.yaml", errors.New("bad indent"))
	wrapped := fmt.Errorf("load: %w", orig)
	if got := Classify(wrapped); got != orig {
		t.Errorf("Classify returned a new error: %v", got)
	}
	if ExitCode(wrapped) != ExitUsage {
		t.Errorf("exit = %d, want %d", ExitCode(wrapped), ExitUsage)
	}
	if ExitCode(nil) != ExitOK {
		t.Error("nil error should exit 0")
	}
}

func TestDisplaySimple(t *testing.T) {
	err := ConnectionFailed("/run/dsfd.sock", errors.New("no such file"))
	out := DisplaySimple(err)
	for _, want := range []string{"CONNECTION_FAILED", "/run/dsfd.sock", "no such file", "dsfd is running"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
