package middleware

import (
	"fmt"
	"time"

	"dsf/internal/logger"

	"github.com/spf13/cobra"
)

// LoggingOptions configures the logging middleware.
type LoggingOptions struct {
	// Logger returns the command logger. It is called at run time because
	// the root command builds the logger in PersistentPreRunE.
	Logger func() *logger.Logger
	// Audit returns the audit logger, or nil.
	Audit func() *logger.AuditLogger
	// SkipCommands are command names that are not logged.
	SkipCommands []string
}

// Logging logs start and completion of each command.
func Logging(opts LoggingOptions) Middleware {
	return func(next RunFunc) RunFunc {
		return func(cmd *cobra.Command, args []string) error {
			for _, skip := range opts.SkipCommands {
				if cmd.Name() == skip {
					return next(cmd, args)
				}
			}

			log := logger.Discard()
			if opts.Logger != nil {
				if l := opts.Logger(); l != nil {
					log = l
				}
			}
			cc := logger.CommandContextFrom(cmd.Context())
			if cc == nil {
				cc = logger.NewCommandContext(cmd, args)
			}
			log = log.With("command", cc.Command, "request_id", cc.RequestID)

			log.Debug("command started", "args", args, "user", cc.User)
			started := time.Now()
			err := next(cmd, args)
			elapsed := time.Since(started)

			if err != nil {
				log.Debug("command failed", "duration_ms", elapsed.Milliseconds(), "error", err)
			} else {
				log.Debug("command completed", "duration_ms", elapsed.Milliseconds())
			}

			if opts.Audit != nil {
				if audit := opts.Audit(); audit != nil {
					ev := logger.AuditEvent{
						Kind:     "command",
						Target:   cc.Command,
						Outcome:  logger.AuditOutcomeSuccess,
						Duration: elapsed,
						Metadata: map[string]any{"args": args, "request_id": cc.RequestID},
					}
					if err != nil {
						ev.Outcome = logger.AuditOutcomeFailure
						ev.Error = err.Error()
					}
					audit.Log(logger.WithCommandContext(cmd.Context(), cc), ev)
				}
			}
			return err
		}
	}
}

// Timing prints the command duration to stderr when verbose is set.
func Timing(verbose func() bool) Middleware {
	return func(next RunFunc) RunFunc {
		return func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			err := next(cmd, args)
			if verbose() {
				fmt.Fprintf(cmd.ErrOrStderr(), "\nCompleted in %s\n", time.Since(start).Round(time.Millisecond))
			}
			return err
		}
	}
}
