// Package sqlite provides the SQLite implementation of the storage interfaces.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"dsf/internal/config"
	"dsf/internal/storage"

	_ "modernc.org/sqlite"
)

// timeLayout keeps stored timestamps lexically ordered.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements the storage.Store interface using SQLite.
type Store struct {
	db   *sql.DB
	path string

	peers         *PeerRepository
	services      *ServiceRepository
	replicas      *ReplicaRepository
	pages         *PageRepository
	data          *DataRepository
	subscriptions *SubscriptionRepository
	names         *NameRepository
	addresses     *AddressRepository

	mu     sync.RWMutex
	closed bool
}

// New opens the database file. Migrations are run by storage.Open.
func New(cfg config.DatabaseConfig, dataDir string) (*Store, error) {
	dbPath := cfg.Path
	if dbPath == "" {
		dbPath = filepath.Join(dataDir, "dsfd.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// pragmas go in the DSN so every pooled connection gets them
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "foreign_keys(1)")
	db, err := sql.Open("sqlite", "file:"+dbPath+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 1
	}
	db.SetMaxOpenConns(maxOpen)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, path: dbPath}
	s.peers = &PeerRepository{store: s}
	s.services = &ServiceRepository{store: s}
	s.replicas = &ReplicaRepository{store: s}
	s.pages = &PageRepository{store: s}
	s.data = &DataRepository{store: s}
	s.subscriptions = &SubscriptionRepository{store: s}
	s.names = &NameRepository{store: s}
	s.addresses = &AddressRepository{store: s}

	storage.Logger("sqlite").Debug("opened database", "path", dbPath, "max_open_conns", maxOpen)
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Peers returns the peer repository.
func (s *Store) Peers() storage.PeerRepository { return s.peers }

// Services returns the service repository.
func (s *Store) Services() storage.ServiceRepository { return s.services }

// Replicas returns the replica repository.
func (s *Store) Replicas() storage.ReplicaRepository { return s.replicas }

// Pages returns the service page repository.
func (s *Store) Pages() storage.PageRepository { return s.pages }

// Data returns the data page repository.
func (s *Store) Data() storage.DataRepository { return s.data }

// Subscriptions returns the subscription repository.
func (s *Store) Subscriptions() storage.SubscriptionRepository { return s.subscriptions }

// Names returns the name-service repository.
func (s *Store) Names() storage.NameRepository { return s.names }

// Addresses returns the address repository.
func (s *Store) Addresses() storage.AddressRepository { return s.addresses }

// Vacuum performs database maintenance.
func (s *Store) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s.isClosed() {
		return storage.ErrClosed
	}
	return s.db.PingContext(ctx)
}

// Stats returns storage statistics for the SQLite database.
func (s *Store) Stats(ctx context.Context) (storage.Stats, error) {
	stats := storage.Stats{
		Healthy: true,
		Message: "SQLite storage operational",
	}

	if err := s.Ping(ctx); err != nil {
		stats.Healthy = false
		stats.Message = fmt.Sprintf("database ping failed: %v", err)
		return stats, nil
	}

	counts := []struct {
		table string
		dst   *int64
	}{
		{"peers", &stats.Peers},
		{"services", &stats.Services},
		{"data_pages", &stats.DataPages},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(c.dst); err != nil {
			return stats, fmt.Errorf("count %s: %w", c.table, err)
		}
	}

	for _, suffix := range []string{"", "-wal", "-shm"} {
		if fi, err := os.Stat(s.path + suffix); err == nil {
			stats.BytesUsed += fi.Size()
		}
	}
	stats.BytesAvailable = freeBytes(filepath.Dir(s.path))

	return stats, nil
}

// raiseWatermark records that index idx of kind has been handed out.
func (s *Store) raiseWatermark(ctx context.Context, kind string, idx int) error {
	_, err := s.exec(ctx, kind+".watermark", `
		INSERT INTO index_watermarks (kind, next_idx) VALUES (?, ?)
		ON CONFLICT(kind) DO UPDATE SET next_idx = MAX(next_idx, excluded.next_idx)
	`, kind, idx+1)
	return err
}

// watermark returns one past the highest index of kind ever saved.
func (s *Store) watermark(ctx context.Context, kind string) (int, error) {
	if s.isClosed() {
		return 0, storage.ErrClosed
	}
	var next int
	err := s.queryRow(ctx, "SELECT next_idx FROM index_watermarks WHERE kind = ?", kind).Scan(&next)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return next, err
}

// DB returns the underlying database connection.
// Use with caution - prefer repository methods.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database file.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// exec runs a statement tagged with the operation context of ctx.
func (s *Store) exec(ctx context.Context, op, query string, args ...any) (sql.Result, error) {
	if s.isClosed() {
		return nil, storage.ErrClosed
	}
	oc := storage.MustGetOperationContext(ctx)
	start := time.Now()

	result, err := s.db.ExecContext(ctx, oc.QueryComment()+" "+query, args...)

	if err != nil {
		storage.Logger("sqlite").Debug("statement failed",
			"op", op,
			"op_id", oc.OperationID,
			"duration", time.Since(start),
			"error", err,
		)
	}
	return result, err
}

// query runs a query tagged with the operation context of ctx.
func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if s.isClosed() {
		return nil, storage.ErrClosed
	}
	oc := storage.MustGetOperationContext(ctx)
	return s.db.QueryContext(ctx, oc.QueryComment()+" "+query, args...)
}

// queryRow runs a single-row query tagged with the operation context of ctx.
func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	oc := storage.MustGetOperationContext(ctx)
	return s.db.QueryRowContext(ctx, oc.QueryComment()+" "+query, args...)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// init registers the SQLite store factory with the storage package.
func init() {
	storage.OpenSQLite = func(ctx context.Context, cfg config.DatabaseConfig, dataDir string) (storage.Store, error) {
		return New(cfg, dataDir)
	}
}
