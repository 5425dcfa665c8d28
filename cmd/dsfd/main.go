package main

import (
	"context"
	"flag"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dsf/internal/config"
	"dsf/internal/logger"
	"dsf/internal/version"
)

var (
	cfgFile     string
	showVersion bool
)

func init() {
	flag.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/dsfd/config.yaml)")
	flag.BoolVar(&showVersion, "version", false, "show version")
}

func main() {
	flag.Parse()

	if showVersion {
		info := version.Get()
		fmt.Printf("dsfd %s\n", info.String())
		fmt.Println(info.Full())
		os.Exit(0)
	}

	// Auto-generate config on first run
	if cfgFile == "" {
		path, created, err := config.GenerateConfigIfNotExists(config.AppDsfd, "yaml", "")
		if err == nil && created {
			stdlog.Printf("Created default config at: %s", path)
		}
	}

	cfg, used, err := config.LoadDsfd(cfgFile)
	if err != nil {
		stdlog.Fatalf("Failed to load config: %v", err)
	}

	if err := os.MkdirAll(cfg.Server.DataDir, 0o700); err != nil {
		stdlog.Fatalf("Failed to create data directory %q: %v", cfg.Server.DataDir, err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		stdlog.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = log.Close() }()

	var auditLog *logger.AuditLogger
	if cfg.Log.AuditPath != "" {
		auditLog, err = logger.NewAuditLogger(cfg.Log.AuditPath, cfg.Log.MaxAgeDays)
		if err != nil {
			log.Warn("failed to initialize audit logger", "error", err)
		} else {
			defer func() { _ = auditLog.Close() }()
		}
	}

	cc := logger.NewDaemonContext("dsfd")
	ctx := logger.WithCommandContext(context.Background(), cc)
	ctx = logger.WithLogger(ctx, log)

	log.Info("starting dsfd",
		"version", version.Get().String(),
		"dev_build", version.IsDev(),
		"config_file", used,
		"data_dir", cfg.Server.DataDir,
		"socket", cfg.RPC.Socket,
		"log_level", cfg.Log.Level,
		"request_id", cc.RequestID,
	)
	log.Debug("p2p configuration",
		"enabled", cfg.P2P.Enabled,
		"listen_addresses", cfg.P2P.ListenAddresses,
		"bootstrap_peers", len(cfg.P2P.BootstrapPeers),
		"dht_mode", cfg.P2P.DHTMode,
		"mdns", cfg.P2P.MDNS,
	)

	auditLog.Log(ctx, logger.AuditEvent{
		Kind:     "daemon",
		Actor:    cc.User,
		Target:   "dsfd",
		Outcome:  logger.AuditOutcomeSuccess,
		Metadata: map[string]any{"event": "startup", "data_dir": cfg.Server.DataDir},
	})

	daemon := NewDaemon(cfg, log, auditLog)

	if err := daemon.Start(ctx); err != nil {
		log.Error("failed to start daemon", "error", err)
		auditLog.Log(ctx, logger.AuditEvent{
			Kind:     "daemon",
			Actor:    cc.User,
			Target:   "dsfd",
			Outcome:  logger.AuditOutcomeFailure,
			Error:    err.Error(),
			Metadata: map[string]any{"event": "startup_failed"},
		})
		os.Exit(1)
	}

	if used != "" {
		watchConfig(ctx, used, log, auditLog)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info("received shutdown signal",
		"signal", sig.String(),
		"request_id", cc.RequestID,
	)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := daemon.Stop(shutdownCtx); err != nil {
		log.Error("error during shutdown", "error", err)
	}

	auditLog.Log(ctx, logger.AuditEvent{
		Kind:     "daemon",
		Actor:    cc.User,
		Target:   "dsfd",
		Outcome:  logger.AuditOutcomeSuccess,
		Metadata: map[string]any{"event": "shutdown", "signal": sig.String()},
	})

	log.Info("dsfd stopped", "request_id", cc.RequestID)
}

// watchConfig applies log level changes from the config file without a
// restart. Other settings take effect on the next start.
func watchConfig(ctx context.Context, file string, log *logger.Logger, auditLog *logger.AuditLogger) {
	w, err := config.NewWatcher(file)
	if err != nil {
		log.Warn("config hot reload disabled", "error", err)
		return
	}
	w.OnChange(func(cfg *config.DsfdConfig) {
		if err := log.SetLevel(cfg.Log.Level); err != nil {
			log.Warn("ignoring log level from reloaded config", "level", cfg.Log.Level, "error", err)
			auditLog.LogConfigChange(ctx, file, logger.AuditOutcomeFailure)
			return
		}
		log.Info("config reloaded", "file", file, "log_level", cfg.Log.Level)
		auditLog.LogConfigChange(ctx, file, logger.AuditOutcomeSuccess)
	})
	w.OnError(func(err error) {
		log.Warn("config reload rejected, keeping previous settings", "file", file, "error", err)
		auditLog.LogConfigChange(ctx, file, logger.AuditOutcomeFailure)
	})
	w.Start()
}
