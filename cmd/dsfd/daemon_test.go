package main

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"dsf/internal/config"
	"dsf/internal/logger"
)

func TestDaemon_PIDFile(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "run", "dsfd.pid")
	cfg := config.DefaultDsfdConfig()
	cfg.Server.PIDFile = pidFile

	d := NewDaemon(cfg, logger.Discard(), nil)

	if err := d.writePIDFile(); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	data, err := os.ReadFile(pidFile)
	if err != nil {
		t.Fatalf("read pid file: %v", err)
	}
	if got := string(data); got != strconv.Itoa(os.Getpid()) {
		t.Errorf("pid file = %q, want %d", got, os.Getpid())
	}

	if err := d.removePIDFile(); err != nil {
		t.Fatalf("removePIDFile: %v", err)
	}
	if _, err := os.Stat(pidFile); !os.IsNotExist(err) {
		t.Errorf("pid file still present: %v", err)
	}
	// Removing twice is not an error.
	if err := d.removePIDFile(); err != nil {
		t.Errorf("second removePIDFile: %v", err)
	}
}

func TestDaemon_OfflineLifecycle(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultDsfdConfig()
	cfg.Server.DataDir = dir
	cfg.Server.PIDFile = ""
	cfg.P2P.Enabled = false
	cfg.P2P.KeyPath = filepath.Join(dir, "identity.pem")
	cfg.Database.Path = filepath.Join(dir, "dsfd.db")
	cfg.RPC.Socket = ""
	cfg.RPC.TCPAddress = "127.0.0.1:0"
	cfg.Metrics.Enabled = false

	d := NewDaemon(cfg, logger.Discard(), nil)
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := d.Start(ctx); err == nil {
		t.Error("second Start should fail")
	}
	if d.server == nil || d.engine == nil || d.store == nil {
		t.Fatal("components not started")
	}
	if d.node != nil {
		t.Error("p2p node started while disabled")
	}
	if _, err := os.Stat(cfg.P2P.KeyPath); err != nil {
		t.Errorf("identity not generated: %v", err)
	}

	if err := d.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if d.server != nil || d.engine != nil || d.store != nil {
		t.Error("components not released")
	}
	if err := d.Stop(ctx); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}
