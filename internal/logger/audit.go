package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// AuditOutcome is the result of an audited request.
type AuditOutcome string

const (
	AuditOutcomeSuccess AuditOutcome = "success"
	AuditOutcomeFailure AuditOutcome = "failure"
	AuditOutcomeDenied  AuditOutcome = "denied"
)

// AuditEvent records one state-changing control-plane request.
type AuditEvent struct {
	Kind      string         `json:"kind"`
	ReqID     uint64         `json:"req_id"`
	Actor     string         `json:"actor"`
	Target    string         `json:"target,omitempty"`
	Outcome   AuditOutcome   `json:"outcome"`
	Error     string         `json:"error,omitempty"`
	Duration  time.Duration  `json:"duration"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// AuditLogger writes audit events as JSON lines to a rotated file.
// A nil *AuditLogger discards everything.
type AuditLogger struct {
	logger *slog.Logger
	closer *lumberjack.Logger
}

// NewAuditLogger opens the audit log at path.
func NewAuditLogger(path string, maxAgeDays int) (*AuditLogger, error) {
	if path == "" {
		return nil, fmt.Errorf("audit path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}
	if maxAgeDays <= 0 {
		maxAgeDays = 365
	}

	lj := &lumberjack.Logger{
		Filename: path,
		MaxSize:  100,
		MaxAge:   maxAgeDays,
		Compress: true,
	}
	handler := slog.NewJSONHandler(lj, &slog.HandlerOptions{Level: slog.LevelInfo})
	return &AuditLogger{logger: slog.New(handler), closer: lj}, nil
}

// Log records an audit event.
func (a *AuditLogger) Log(ctx context.Context, event AuditEvent) {
	if a == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Actor == "" {
		event.Actor = "unknown"
		if cc := CommandContextFrom(ctx); cc != nil {
			event.Actor = cc.User
		}
	}

	attrs := []slog.Attr{
		slog.String("kind", event.Kind),
		ReqIDAttr(event.ReqID),
		slog.String("actor", event.Actor),
		slog.String("outcome", string(event.Outcome)),
		slog.Duration("duration", event.Duration),
		slog.Time("timestamp", event.Timestamp),
	}
	if event.Target != "" {
		attrs = append(attrs, slog.String("target", event.Target))
	}
	if event.Error != "" {
		attrs = append(attrs, slog.String("error", event.Error))
	}
	if len(event.Metadata) > 0 {
		attrs = append(attrs, slog.Any("metadata", event.Metadata))
	}
	a.logger.LogAttrs(ctx, slog.LevelInfo, "audit", attrs...)
}

// LogRequest records the outcome of a request. err decides the outcome.
func (a *AuditLogger) LogRequest(ctx context.Context, kind string, reqID uint64, target string, started time.Time, err error) {
	ev := AuditEvent{
		Kind:     kind,
		ReqID:    reqID,
		Target:   target,
		Outcome:  AuditOutcomeSuccess,
		Duration: time.Since(started),
	}
	if err != nil {
		ev.Outcome = AuditOutcomeFailure
		ev.Error = err.Error()
	}
	a.Log(ctx, ev)
}

// LogConfigChange records a configuration reload.
func (a *AuditLogger) LogConfigChange(ctx context.Context, file string, outcome AuditOutcome) {
	a.Log(ctx, AuditEvent{
		Kind:    "config.reload",
		Actor:   "dsfd",
		Target:  file,
		Outcome: outcome,
	})
}

// Close flushes and closes the audit file.
func (a *AuditLogger) Close() error {
	if a == nil || a.closer == nil {
		return nil
	}
	return a.closer.Close()
}
