// Package main provides the dsfd daemon.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"dsf/internal/config"
	"dsf/internal/daemon"
	dsfgrpc "dsf/internal/grpc"
	"dsf/internal/logger"
	"dsf/internal/p2p"
	"dsf/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	// Register the sqlite backend
	_ "dsf/internal/storage/sqlite"
)

// Daemon manages all dsfd components and their lifecycle.
type Daemon struct {
	cfg      *config.DsfdConfig
	log      *logger.Logger
	auditLog *logger.AuditLogger

	registry *prometheus.Registry
	store    storage.Store
	node     *p2p.Node
	engine   *daemon.Engine
	server   *dsfgrpc.Server

	mu      sync.Mutex
	running bool
}

// NewDaemon creates a new daemon instance.
func NewDaemon(cfg *config.DsfdConfig, log *logger.Logger, auditLog *logger.AuditLogger) *Daemon {
	storage.SetLogger(log)
	p2p.SetLogger(log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Daemon{
		cfg:      cfg,
		log:      log,
		auditLog: auditLog,
		registry: reg,
	}
}

// Start brings up the components in order: storage, network, engine,
// control plane. A failure unwinds whatever already started.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return fmt.Errorf("daemon already running")
	}

	d.log.Info("starting daemon components")

	if err := d.writePIDFile(); err != nil {
		d.log.Warn("failed to write PID file", "error", err, "path", d.cfg.Server.PIDFile)
	}

	if err := d.startStorage(ctx); err != nil {
		return fmt.Errorf("failed to start storage: %w", err)
	}

	network, err := d.startNetwork(ctx)
	if err != nil {
		d.stopStorage()
		return fmt.Errorf("failed to start p2p: %w", err)
	}

	d.engine, err = daemon.New(ctx, daemon.Options{
		Store:          d.store,
		Network:        network,
		Subscriptions:  d.cfg.Subscriptions,
		ReplicaTTL:     d.cfg.P2P.ReplicaTTL,
		ConnectTimeout: d.cfg.P2P.ConnectTimeout,
		Registerer:     d.registry,
		Logger:         d.log,
	})
	if err != nil {
		d.stopNetwork()
		d.stopStorage()
		return fmt.Errorf("failed to start engine: %w", err)
	}
	d.engine.Start(context.WithoutCancel(ctx))

	if err := d.startServer(ctx); err != nil {
		_ = d.engine.Close()
		d.engine = nil
		d.stopNetwork()
		d.stopStorage()
		return fmt.Errorf("failed to start control plane: %w", err)
	}

	d.running = true
	d.log.Info("daemon started successfully", "id", network.ID())
	return nil
}

// Stop shuts the components down in reverse order.
func (d *Daemon) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return nil
	}

	d.log.Info("stopping daemon components")

	var errs []error

	if d.server != nil {
		if err := d.server.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("control plane: %w", err))
		}
		d.server = nil
	}

	if d.engine != nil {
		if err := d.engine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("engine: %w", err))
		}
		d.engine = nil
	}

	if err := d.stopNetwork(); err != nil {
		errs = append(errs, fmt.Errorf("p2p: %w", err))
	}

	if err := d.stopStorage(); err != nil {
		errs = append(errs, fmt.Errorf("storage: %w", err))
	}

	if err := d.removePIDFile(); err != nil {
		d.log.Warn("failed to remove PID file", "error", err)
	}

	d.running = false

	if err := errors.Join(errs...); err != nil {
		d.log.Error("daemon stopped with errors", "error", err)
		return err
	}

	d.log.Info("daemon stopped successfully")
	return nil
}

// startStorage opens the database and applies pending migrations.
func (d *Daemon) startStorage(ctx context.Context) error {
	d.log.Debug("initializing storage", "path", d.cfg.Database.Path)

	store, err := storage.Open(ctx, d.cfg.Database, d.cfg.Server.DataDir)
	if err != nil {
		d.log.Error("failed to open storage", "error", err)
		return err
	}

	if err := store.Ping(ctx); err != nil {
		store.Close()
		d.log.Error("storage ping failed", "error", err)
		return fmt.Errorf("storage ping failed: %w", err)
	}

	d.store = store

	if stats, err := store.Stats(ctx); err == nil {
		d.log.Info("storage initialized",
			"path", d.cfg.Database.Path,
			"peers", stats.Peers,
			"services", stats.Services,
		)
	}
	return nil
}

func (d *Daemon) stopStorage() error {
	if d.store == nil {
		return nil
	}

	d.log.Debug("shutting down storage")

	if err := d.store.Close(); err != nil {
		d.log.Error("error closing storage", "error", err)
		return err
	}

	d.store = nil
	return nil
}

// startNetwork joins the peer network, or returns an offline network when
// p2p is disabled. The identity is loaded either way so the daemon id is
// stable.
func (d *Daemon) startNetwork(ctx context.Context) (daemon.Network, error) {
	identity, err := p2p.LoadOrGenerateIdentity(d.cfg.P2P.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}

	if !d.cfg.P2P.Enabled {
		d.log.Info("p2p disabled, running offline", "id", identity.ID())
		return daemon.NewOffline(identity), nil
	}

	d.log.Debug("initializing p2p networking",
		"listen_addresses", d.cfg.P2P.ListenAddresses,
	)

	// The node outlives Start's ctx; Close cancels it.
	node, err := p2p.NewNode(context.WithoutCancel(ctx), d.cfg.P2P, identity)
	if err != nil {
		d.log.Error("failed to create p2p node", "error", err)
		return nil, err
	}
	if err := node.Start(ctx); err != nil {
		_ = node.Close()
		d.log.Error("failed to start p2p node", "error", err)
		return nil, err
	}
	d.node = node

	for _, addr := range node.Addresses() {
		d.log.Debug("p2p listening", "addr", addr)
	}
	return node, nil
}

func (d *Daemon) stopNetwork() error {
	if d.node == nil {
		return nil
	}

	d.log.Debug("stopping p2p node")
	err := d.node.Close()
	if err != nil {
		d.log.Error("error closing p2p node", "error", err)
	}
	d.node = nil
	return err
}

func (d *Daemon) startServer(ctx context.Context) error {
	srv, err := dsfgrpc.NewServer(dsfgrpc.ServerConfig{
		RPC:      d.cfg.RPC,
		Metrics:  d.cfg.Metrics,
		Handler:  d.engine,
		Logger:   d.log,
		Audit:    d.auditLog,
		Registry: d.registry,
	})
	if err != nil {
		return err
	}
	if err := srv.Start(ctx); err != nil {
		return err
	}
	d.server = srv
	return nil
}

func (d *Daemon) writePIDFile() error {
	pidFile := config.ExpandPath(d.cfg.Server.PIDFile)
	if pidFile == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(pidFile), 0o755); err != nil {
		return fmt.Errorf("failed to create PID file directory: %w", err)
	}

	pid := os.Getpid()
	if err := os.WriteFile(pidFile, []byte(strconv.Itoa(pid)), 0o644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	d.log.Debug("wrote PID file", "path", pidFile, "pid", pid)
	return nil
}

func (d *Daemon) removePIDFile() error {
	pidFile := config.ExpandPath(d.cfg.Server.PIDFile)
	if pidFile == "" {
		return nil
	}
	if err := os.Remove(pidFile); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
