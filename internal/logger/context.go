package logger

import (
	"context"
	"log/slog"
	"os"
	"os/user"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type contextKey string

const (
	commandContextKey contextKey = "command_context"
	loggerContextKey  contextKey = "logger"
	reqIDContextKey   contextKey = "req_id"
)

// CommandContext holds metadata about a CLI command or daemon operation.
type CommandContext struct {
	Command   string    `json:"command"`
	Args      []string  `json:"args,omitempty"`
	User      string    `json:"user"`
	Hostname  string    `json:"hostname"`
	Timestamp time.Time `json:"timestamp"`
	// RequestID correlates log lines of one invocation; it is unrelated to
	// the control-plane req_id.
	RequestID string `json:"request_id"`
}

// NewCommandContext creates a CommandContext from a Cobra command.
func NewCommandContext(cmd *cobra.Command, args []string) *CommandContext {
	cc := newContext(cmd.CommandPath())
	cc.Args = args
	return cc
}

// NewDaemonContext creates a CommandContext for daemon operations.
func NewDaemonContext(operation string) *CommandContext {
	return newContext(operation)
}

func newContext(command string) *CommandContext {
	cc := &CommandContext{
		Command:   command,
		Timestamp: time.Now(),
		RequestID: uuid.NewString(),
	}
	if u, err := user.Current(); err == nil {
		cc.User = u.Username
	}
	if hostname, err := os.Hostname(); err == nil {
		cc.Hostname = hostname
	}
	return cc
}

// WithCommandContext stores a CommandContext in the context.
func WithCommandContext(ctx context.Context, cc *CommandContext) context.Context {
	return context.WithValue(ctx, commandContextKey, cc)
}

// CommandContextFrom retrieves the CommandContext from the context.
func CommandContextFrom(ctx context.Context) *CommandContext {
	if cc, ok := ctx.Value(commandContextKey).(*CommandContext); ok {
		return cc
	}
	return nil
}

// WithLogger stores a Logger in the context.
func WithLogger(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, l)
}

// LoggerFrom retrieves the Logger from the context, falling back to Default.
func LoggerFrom(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerContextKey).(*Logger); ok {
		return l
	}
	return Default()
}

// WithReqID tags ctx with a control-plane request id.
func WithReqID(ctx context.Context, reqID uint64) context.Context {
	return context.WithValue(ctx, reqIDContextKey, reqID)
}

// ReqIDFrom returns the control-plane request id stored in ctx.
func ReqIDFrom(ctx context.Context) (uint64, bool) {
	id, ok := ctx.Value(reqIDContextKey).(uint64)
	return id, ok
}

// ReqIDAttr formats a request id for logging.
func ReqIDAttr(reqID uint64) slog.Attr {
	return slog.String("req_id", strconv.FormatUint(reqID, 16))
}

// LogAttrs returns the CommandContext as slog attributes.
func (cc *CommandContext) LogAttrs() []slog.Attr {
	if cc == nil {
		return nil
	}
	attrs := []slog.Attr{
		slog.String("request_id", cc.RequestID),
		slog.String("command", cc.Command),
		slog.String("user", cc.User),
		slog.String("hostname", cc.Hostname),
	}
	if len(cc.Args) > 0 {
		attrs = append(attrs, slog.Any("args", cc.Args))
	}
	return attrs
}

// LogGroup returns the CommandContext as a grouped slog attribute.
func (cc *CommandContext) LogGroup() slog.Attr {
	if cc == nil {
		return slog.Attr{}
	}
	attrs := cc.LogAttrs()
	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}
	return slog.Group("context", args...)
}
