// Package migrate provides database migration management with checksums.
package migrate

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"dsf/internal/logger"
)

//go:embed migrations/sqlite/*.sql
var sqliteFS embed.FS

const sqlitePath = "migrations/sqlite"

// MigrationsTable records the applied schema version.
const MigrationsTable = "dsf_schema_migrations"

// ChecksumsTable records the checksum of every applied migration file.
const ChecksumsTable = "dsf_migration_checksums"

// ErrChecksumMismatch is returned when an applied migration file changed.
var ErrChecksumMismatch = errors.New("migration checksum mismatch")

// Config holds migration configuration.
type Config struct {
	// VerifyChecksums determines if checksums should be verified on startup.
	VerifyChecksums bool

	// OnChecksumMismatch determines behavior when checksum verification fails.
	// Options: "fail" (abort startup), "warn" (log warning), "ignore"
	OnChecksumMismatch string

	// LockTimeout is how long to wait for the migration lock.
	LockTimeout time.Duration

	Logger *logger.Logger
}

// DefaultConfig returns default migration configuration.
func DefaultConfig() Config {
	return Config{
		VerifyChecksums:    true,
		OnChecksumMismatch: "fail",
		LockTimeout:        15 * time.Second,
	}
}

// Manager handles database migrations.
type Manager struct {
	cfg       Config
	db        *sql.DB
	m         *migrate.Migrate
	log       *logger.Logger
	checksums map[string]checksum // file name -> checksum
}

type checksum struct {
	version uint
	sum     string
}

// NewSQLiteManager creates a migration manager for SQLite.
func NewSQLiteManager(db *sql.DB, cfg Config) (*Manager, error) {
	driver, err := sqlite.WithInstance(db, &sqlite.Config{
		MigrationsTable: MigrationsTable,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	return newManager(db, driver, sqliteFS, sqlitePath, cfg)
}

func newManager(db *sql.DB, driver database.Driver, fsys fs.FS, path string, cfg Config) (*Manager, error) {
	sourceDriver, err := iofs.New(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("failed to create source driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	if cfg.LockTimeout > 0 {
		m.LockTimeout = cfg.LockTimeout
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Discard()
	}

	mgr := &Manager{
		cfg:       cfg,
		db:        db,
		m:         m,
		log:       log,
		checksums: make(map[string]checksum),
	}
	if err := mgr.calculateChecksums(fsys, path); err != nil {
		return nil, fmt.Errorf("failed to calculate checksums: %w", err)
	}
	return mgr, nil
}

// calculateChecksums computes SHA-256 checksums for all migration files.
func (m *Manager) calculateChecksums(fsys fs.FS, path string) error {
	entries, err := fs.ReadDir(fsys, path)
	if err != nil {
		return fmt.Errorf("failed to read migration directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, ok := fileVersion(entry.Name())
		if !ok {
			continue
		}

		content, err := fs.ReadFile(fsys, path+"/"+entry.Name())
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", entry.Name(), err)
		}
		m.checksums[entry.Name()] = checksum{
			version: version,
			sum:     fmt.Sprintf("%x", sha256.Sum256(content)),
		}
	}
	return nil
}

// fileVersion extracts the version from "000001_initial_schema.up.sql".
func fileVersion(name string) (uint, bool) {
	prefix, _, ok := strings.Cut(name, "_")
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseUint(prefix, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint(v), true
}

// Up runs all pending migrations.
func (m *Manager) Up(ctx context.Context) error {
	if err := m.ensureChecksumTable(ctx); err != nil {
		return err
	}

	if m.cfg.VerifyChecksums {
		if err := m.verifyChecksums(ctx); err != nil {
			switch m.cfg.OnChecksumMismatch {
			case "warn":
				m.log.Warn("checksum verification failed", logger.WithError(err))
			case "ignore":
			default:
				return fmt.Errorf("checksum verification failed: %w", err)
			}
		}
	}

	if err := m.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}

	if err := m.storeChecksums(ctx); err != nil {
		// non-critical, verification just has less to compare next time
		m.log.Warn("failed to store migration checksums", logger.WithError(err))
	}

	version, _, _ := m.Version()
	m.log.Debug("schema up to date", "version", version)
	return nil
}

// Down rolls back one migration.
func (m *Manager) Down(ctx context.Context) error {
	if err := m.m.Steps(-1); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}
	return m.storeChecksums(ctx)
}

// Version returns the current migration version.
func (m *Manager) Version() (uint, bool, error) {
	return m.m.Version()
}

func (m *Manager) ensureChecksumTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+ChecksumsTable+` (
		filename   TEXT PRIMARY KEY,
		version    INTEGER NOT NULL,
		checksum   TEXT NOT NULL,
		applied_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to create checksum table: %w", err)
	}
	return nil
}

// verifyChecksums compares stored checksums with the embedded files.
func (m *Manager) verifyChecksums(ctx context.Context) error {
	rows, err := m.db.QueryContext(ctx, "SELECT filename, checksum FROM "+ChecksumsTable)
	if err != nil {
		return err
	}
	defer rows.Close()

	var mismatched []string
	for rows.Next() {
		var name, sum string
		if err := rows.Scan(&name, &sum); err != nil {
			return err
		}
		current, ok := m.checksums[name]
		if !ok || current.sum != sum {
			mismatched = append(mismatched, name)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(mismatched) > 0 {
		sort.Strings(mismatched)
		return fmt.Errorf("%w: %s", ErrChecksumMismatch, strings.Join(mismatched, ", "))
	}
	return nil
}

// storeChecksums records the checksums of the applied up migrations and
// forgets those rolled back.
func (m *Manager) storeChecksums(ctx context.Context) error {
	current, _, err := m.m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return err
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+ChecksumsTable+" WHERE version > ?", current); err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for name, c := range m.checksums {
		if c.version > current || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO `+ChecksumsTable+` (filename, version, checksum, applied_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(filename) DO NOTHING
		`, name, c.version, c.sum, now)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// MigrationInfo contains information about a migration.
type MigrationInfo struct {
	Version     uint
	Description string
	Applied     bool
	Checksum    string
}

// List returns information about all migrations.
func (m *Manager) List(ctx context.Context) ([]MigrationInfo, error) {
	currentVersion, dirty, err := m.m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return nil, fmt.Errorf("failed to get version: %w", err)
	}

	var migrations []MigrationInfo
	for name, c := range m.checksums {
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		_, desc, _ := strings.Cut(strings.TrimSuffix(name, ".up.sql"), "_")

		migrations = append(migrations, MigrationInfo{
			Version:     c.version,
			Description: strings.ReplaceAll(desc, "_", " "),
			Applied:     err == nil && !dirty && c.version <= currentVersion,
			Checksum:    c.sum,
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// Close closes the migration manager and the database it was created with.
func (m *Manager) Close() error {
	srcErr, dbErr := m.m.Close()
	if srcErr != nil {
		return srcErr
	}
	return dbErr
}
