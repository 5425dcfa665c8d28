package control

import (
	"errors"
	"fmt"
	"io"
	"time"

	"dsf/internal/domain"
	"dsf/internal/rpc"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"
)

// ErrorDomain tags ErrorInfo details produced by dsfd.
const ErrorDomain = "dsf"

var grpcCodes = map[string]codes.Code{
	rpc.CodeInvalidIdentifier:   codes.InvalidArgument,
	rpc.CodeNotFound:            codes.NotFound,
	rpc.CodeTimeout:             codes.DeadlineExceeded,
	rpc.CodeKeyMismatch:         codes.FailedPrecondition,
	rpc.CodeMalformed:           codes.InvalidArgument,
	rpc.CodeInvalidAddress:      codes.InvalidArgument,
	rpc.CodePeerBlocked:         codes.PermissionDenied,
	rpc.CodeInvalidServiceState: codes.FailedPrecondition,
	rpc.CodeNotOrigin:           codes.PermissionDenied,
	rpc.CodeNoSecretKey:         codes.FailedPrecondition,
	rpc.CodeInvalidSubscription: codes.InvalidArgument,
	rpc.CodeSubscriptionExpired: codes.FailedPrecondition,
	rpc.CodeInvalidName:         codes.InvalidArgument,
	rpc.CodeInvalidTimeRange:    codes.InvalidArgument,
	rpc.CodeUnimplemented:       codes.Unimplemented,
	rpc.CodeInternal:            codes.Internal,
}

// Status converts err to a gRPC status error. The rpc error code travels as
// an ErrorInfo reason so FromStatus can restore it.
func Status(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	e := rpc.NewError(err)
	code, ok := grpcCodes[e.Code]
	if !ok {
		code = codes.Internal
	}
	st := status.New(code, e.Message)
	if detailed, derr := st.WithDetails(&errdetails.ErrorInfo{
		Reason: e.Code,
		Domain: ErrorDomain,
	}); derr == nil {
		st = detailed
	}
	return st.Err()
}

// RateLimited returns a ResourceExhausted status advising a retry delay.
func RateLimited(delay time.Duration) error {
	st := status.New(codes.ResourceExhausted, "rate limit exceeded")
	if detailed, err := st.WithDetails(&errdetails.RetryInfo{
		RetryDelay: durationpb.New(delay),
	}); err == nil {
		st = detailed
	}
	return st.Err()
}

// RetryError reports that the daemon refused the stream and when to retry.
// The request was never processed, so a retry is safe for any kind.
type RetryError struct {
	Delay   time.Duration
	Message string
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("%s (retry in %s)", e.Message, e.Delay)
}

// FromStatus maps a stream failure back into the error taxonomy.
func FromStatus(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) {
		return rpc.ErrClosed
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	for _, d := range st.Details() {
		switch info := d.(type) {
		case *errdetails.ErrorInfo:
			if info.GetDomain() == ErrorDomain {
				return rpc.Error{Code: info.GetReason(), Message: st.Message()}
			}
		case *errdetails.RetryInfo:
			return &RetryError{Delay: info.GetRetryDelay().AsDuration(), Message: st.Message()}
		}
	}

	switch st.Code() {
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", domain.ErrTimeout, st.Message())
	case codes.Unavailable, codes.Canceled, codes.Aborted:
		return fmt.Errorf("%w: %s", rpc.ErrClosed, st.Message())
	}
	return err
}
