// Package cmd implements the dsf command tree.
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	clierrors "dsf/internal/cli/errors"
	"dsf/internal/cli/middleware"
	"dsf/internal/cli/output"
	"dsf/internal/config"
	"dsf/internal/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var (
	// cfgFile is the path to the config file (set via --config flag)
	cfgFile string

	// cfg holds the loaded configuration
	cfg *config.DsfConfig

	// log is the logger instance
	log *logger.Logger

	// auditLog is the audit logger instance
	auditLog *logger.AuditLogger

	// cmdCtx carries the logger and command context
	cmdCtx context.Context

	// Global flags
	outputFormat  string
	verboseMode   bool
	daemonAddress string
	timeout       time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "dsf",
	Short: "dsf controls a dsfd daemon",
	Long: `dsf is the command-line client for dsfd, a node of the distributed
service framework. It creates and publishes services, locates and
subscribes to services on the network, and manages peers.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(cmd); err != nil {
			return err
		}

		var err error
		log, err = logger.New(cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if cfg.Log.AuditPath != "" {
			auditLog, err = logger.NewAuditLogger(cfg.Log.AuditPath, cfg.Log.MaxAgeDays)
			if err != nil {
				log.Warn("failed to initialize audit logger", "error", err)
			}
		}

		cc := logger.NewCommandContext(cmd, args)
		cmdCtx = logger.WithCommandContext(cmd.Context(), cc)
		cmdCtx = logger.WithLogger(cmdCtx, log)
		cmd.SetContext(cmdCtx)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the command tree and returns the process exit status.
func Execute(ctx context.Context) int {
	middleware.ApplyRecursive(rootCmd,
		middleware.Logging(middleware.LoggingOptions{
			Logger:       Log,
			Audit:        AuditLog,
			SkipCommands: []string{"help", "version"},
		}),
		middleware.Timing(IsVerbose),
	)

	err := rootCmd.ExecuteContext(ctx)
	defer cleanup()
	if err != nil {
		if term.IsTerminal(int(os.Stderr.Fd())) && (cfg == nil || cfg.Output.Color) {
			fmt.Fprint(os.Stderr, clierrors.Display(err))
		} else {
			fmt.Fprint(os.Stderr, clierrors.DisplaySimple(err))
		}
	}
	return clierrors.ExitCode(err)
}

func cleanup() {
	_ = CloseClient()
	if auditLog != nil {
		_ = auditLog.Close()
	}
	if log != nil {
		_ = log.Close()
	}
}

func init() {
	cobra.OnInitialize(onInitialize)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/dsf/config.yaml)")
	pf.StringVarP(&outputFormat, "output", "o", "table", "output format (table, json, yaml, quiet)")
	pf.BoolVarP(&verboseMode, "verbose", "v", false, "verbose output (debug logging and timing)")
	pf.StringVarP(&daemonAddress, "address", "a", "", "daemon socket, named pipe or host:port")
	pf.DurationVarP(&timeout, "timeout", "t", 0, "per-request timeout")

	_ = viper.BindPFlag("output.format", pf.Lookup("output"))
	_ = viper.BindPFlag("connection.address", pf.Lookup("address"))
	_ = viper.BindPFlag("connection.timeout", pf.Lookup("timeout"))

	rootCmd.AddCommand(
		newStatusCommand(),
		newPeerCommand(),
		newServiceCommand(),
		newDataCommand(),
		newNsCommand(),
		newPageCommand(),
		newSubscriberCommand(),
		newConfigCommand(),
		newDebugCommand(),
		newStreamCommand(),
		newVersionCommand(),
	)
}

// onInitialize writes a default config on first run.
func onInitialize() {
	if cfgFile != "" {
		return
	}
	path, created, err := config.GenerateConfigIfNotExists(config.AppDsf, "yaml", "")
	if err == nil && created {
		fmt.Fprintf(os.Stderr, "Created default config at: %s\n", path)
	}
}

func loadConfig(cmd *cobra.Command) error {
	var err error
	cfg, err = config.LoadDsf(cfgFile)
	if err != nil {
		return clierrors.ConfigInvalid(cfgFile, err)
	}

	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.Output.Format = viper.GetString("output.format")
	}
	if flags.Changed("address") {
		cfg.Connection.Address = viper.GetString("connection.address")
	}
	if flags.Changed("timeout") {
		cfg.Connection.Timeout = viper.GetDuration("connection.timeout")
	}
	if verboseMode {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return clierrors.ConfigInvalid(cfgFile, err)
	}
	return nil
}

// Config returns the loaded configuration.
func Config() *config.DsfConfig {
	return cfg
}

// Log returns the logger instance.
func Log() *logger.Logger {
	return log
}

// AuditLog returns the audit logger, or nil.
func AuditLog() *logger.AuditLogger {
	return auditLog
}

// IsVerbose reports whether --verbose was given.
func IsVerbose() bool {
	return verboseMode
}

// newWriter returns an output writer for the configured format.
func newWriter(cmd *cobra.Command) *output.Writer {
	format := outputFormat
	color := true
	if cfg != nil {
		format = cfg.Output.Format
		color = cfg.Output.Color
	}
	w := output.NewWriter(output.ParseFormat(format)).WithColor(color)
	if out := cmd.OutOrStdout(); out != os.Stdout {
		w.WithOutput(out)
	}
	return w
}
