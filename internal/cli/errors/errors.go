// Package errors provides rich error types and display for the dsf CLI.
//
// Errors carry:
//   - A code for scripts and support
//   - An exit status derived from the code
//   - Actionable suggestions
//
// Daemon errors arrive as rpc.Error values that unwrap to the domain
// sentinels, so classification works the same for local and remote failures.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"dsf/internal/domain"
	"dsf/internal/grpc/client"
	"dsf/internal/rpc"

	"github.com/charmbracelet/lipgloss"
)

// Code represents an error code for categorization.
type Code string

const (
	CodeUnknown          Code = "UNKNOWN"
	CodeConfigInvalid    Code = "CONFIG_INVALID"
	CodeConnectionFailed Code = "CONNECTION_FAILED"
	CodeNotFound         Code = "NOT_FOUND"
	CodeValidation       Code = "VALIDATION"
	CodeTimeout          Code = "TIMEOUT"
	CodeConflict         Code = "CONFLICT"
	CodeUnsupported      Code = "UNSUPPORTED"
	CodeUserCancelled    Code = "USER_CANCELLED"
)

// Exit statuses returned by the dsf binary.
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitUsage      = 2
	ExitNotFound   = 3
	ExitConnection = 4
	ExitTimeout    = 5
	ExitConflict   = 6
	ExitCancelled  = 130
)

var exitCodes = map[Code]int{
	CodeUnknown:          ExitFailure,
	CodeConfigInvalid:    ExitUsage,
	CodeValidation:       ExitUsage,
	CodeNotFound:         ExitNotFound,
	CodeConnectionFailed: ExitConnection,
	CodeTimeout:          ExitTimeout,
	CodeConflict:         ExitConflict,
	CodeUnsupported:      ExitFailure,
	CodeUserCancelled:    ExitCancelled,
}

// Rich is an enhanced error with additional context for display.
type Rich struct {
	Code        Code
	Message     string
	Details     string
	Suggestions []string
	Cause       error
}

func (e *Rich) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Rich) Unwrap() error {
	return e.Cause
}

// ExitCode returns the process exit status for the error's code.
func (e *Rich) ExitCode() int {
	if c, ok := exitCodes[e.Code]; ok {
		return c
	}
	return ExitFailure
}

// New creates a new Rich error.
func New(code Code, message string) *Rich {
	return &Rich{Code: code, Message: message}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, code Code, message string) *Rich {
	return &Rich{Code: code, Message: message, Cause: err}
}

// WithDetails adds technical details to the error.
func (e *Rich) WithDetails(details string) *Rich {
	e.Details = details
	return e
}

// WithSuggestions adds actionable suggestions.
func (e *Rich) WithSuggestions(suggestions ...string) *Rich {
	e.Suggestions = suggestions
	return e
}

// AsRich converts an error to a Rich error if possible.
func AsRich(err error) *Rich {
	var rich *Rich
	if errors.As(err, &rich) {
		return rich
	}
	return nil
}

// Classify returns err as a Rich error, deriving the code and suggestions
// from the sentinel it wraps.
func Classify(err error) *Rich {
	if err == nil {
		return nil
	}
	if rich := AsRich(err); rich != nil {
		return rich
	}

	switch {
	case errors.Is(err, context.Canceled):
		return UserCancelled()
	case client.IsUnavailable(err):
		return Wrap(err, CodeConnectionFailed, "Cannot reach dsfd").
			WithSuggestions(
				"Check that dsfd is running",
				"Check connection.address in your config or pass --address",
			)
	case errors.Is(err, domain.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return Wrap(err, CodeTimeout, "Request timed out").
			WithSuggestions("Retry with a longer --timeout")
	case errors.Is(err, domain.ErrNotFound):
		return Wrap(err, CodeNotFound, "Not found").
			WithSuggestions("List known records with 'dsf peer list' or 'dsf service list'")
	case errors.Is(err, domain.ErrInvalidIdentifier):
		return Wrap(err, CodeValidation, "Invalid identifier").
			WithSuggestions("Select the record with --id or --index")
	case errors.Is(err, domain.ErrMalformed),
		errors.Is(err, domain.ErrInvalidAddress),
		errors.Is(err, domain.ErrInvalidName),
		errors.Is(err, domain.ErrInvalidTimeRange):
		return Wrap(err, CodeValidation, "Invalid request")
	case errors.Is(err, domain.ErrNotOrigin):
		return Wrap(err, CodeConflict, "Service is not owned by this daemon")
	case errors.Is(err, domain.ErrNoSecretKey):
		return Wrap(err, CodeConflict, "Service has no secret key").
			WithSuggestions("Set one with 'dsf service set-key'")
	case errors.Is(err, domain.ErrPeerBlocked):
		return Wrap(err, CodeConflict, "Peer is blocked").
			WithSuggestions("Unblock it with 'dsf peer unblock'")
	case errors.Is(err, domain.ErrInvalidServiceState),
		errors.Is(err, domain.ErrKeyMismatch),
		errors.Is(err, domain.ErrInvalidSubscription),
		errors.Is(err, domain.ErrSubscriptionExpired),
		errors.Is(err, domain.ErrInvalidPeerKind):
		return Wrap(err, CodeConflict, "Request conflicts with current state")
	case errors.Is(err, rpc.ErrUnknownKind):
		return Wrap(err, CodeUnsupported, "Daemon does not support this request").
			WithSuggestions("Upgrade dsfd to match this dsf version")
	}
	return Wrap(err, CodeUnknown, "Command failed")
}

// ExitCode returns the exit status for err. A nil error exits 0.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	return Classify(err).ExitCode()
}

// Display formats the error for a terminal.
func Display(err error) string {
	rich := Classify(err)

	header := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	muted := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	hint := lipgloss.NewStyle().Foreground(lipgloss.Color("12"))

	var b strings.Builder
	b.WriteString(header.Render("✗ " + rich.Message))
	b.WriteString(" ")
	b.WriteString(muted.Render(fmt.Sprintf("[%s]", rich.Code)))
	b.WriteString("\n")
	if rich.Details != "" {
		b.WriteString(muted.Render("  " + rich.Details))
		b.WriteString("\n")
	}
	if rich.Cause != nil {
		b.WriteString("  ")
		b.WriteString(rich.Cause.Error())
		b.WriteString("\n")
	}
	for _, s := range rich.Suggestions {
		b.WriteString(hint.Render("  → " + s))
		b.WriteString("\n")
	}
	return b.String()
}

// DisplaySimple formats an error without styling.
func DisplaySimple(err error) string {
	rich := Classify(err)

	var b strings.Builder
	fmt.Fprintf(&b, "Error [%s]: %s\n", rich.Code, rich.Message)
	if rich.Details != "" {
		fmt.Fprintf(&b, "  Details: %s\n", rich.Details)
	}
	if rich.Cause != nil {
		fmt.Fprintf(&b, "  Caused by: %v\n", rich.Cause)
	}
	for _, s := range rich.Suggestions {
		fmt.Fprintf(&b, "  - %s\n", s)
	}
	return b.String()
}

// ConfigInvalid returns a config validation error.
func ConfigInvalid(path string, cause error) *Rich {
	return Wrap(cause, CodeConfigInvalid, "Configuration is invalid").
		WithDetails(fmt.Sprintf("File: %s", path)).
		WithSuggestions("Check the file syntax", "Run 'dsf config init' to write a fresh default")
}

// ConnectionFailed returns a connection error for addr.
func ConnectionFailed(addr string, cause error) *Rich {
	return Wrap(cause, CodeConnectionFailed, "Failed to connect to dsfd").
		WithDetails(fmt.Sprintf("Address: %s", addr)).
		WithSuggestions(
			"Check that dsfd is running",
			"Check connection.address in your config or pass --address",
		)
}

// Usage returns a validation error for bad command-line input.
func Usage(message string, cause error) *Rich {
	return Wrap(cause, CodeValidation, message)
}

// UserCancelled returns an error indicating the user cancelled the operation.
func UserCancelled() *Rich {
	return New(CodeUserCancelled, "Operation cancelled")
}
