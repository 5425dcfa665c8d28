package logger

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
)

// WrappedError is an error annotated with the location that wrapped it.
type WrappedError struct {
	msg    string
	cause  error
	caller string
}

func (e *WrappedError) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

func (e *WrappedError) Unwrap() error { return e.cause }

// Caller returns file:line of the WrapError call.
func (e *WrappedError) Caller() string { return e.caller }

// WrapError wraps an error with a message and caller information.
func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	caller := "unknown"
	if _, file, line, ok := runtime.Caller(1); ok {
		caller = fmt.Sprintf("%s/%s:%d", filepath.Base(filepath.Dir(file)), filepath.Base(file), line)
	}
	return &WrappedError{msg: msg, cause: err, caller: caller}
}

// WithError creates an slog.Attr describing an error and its chain.
func WithError(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}

	attrs := []any{slog.String("message", err.Error())}

	var chain []string
	for e := errors.Unwrap(err); e != nil; e = errors.Unwrap(e) {
		chain = append(chain, e.Error())
	}
	if len(chain) > 0 {
		attrs = append(attrs, slog.String("cause", chain[len(chain)-1]))
	}

	var we *WrappedError
	if errors.As(err, &we) {
		attrs = append(attrs, slog.String("caller", we.Caller()))
	}
	return slog.Group("error", attrs...)
}
