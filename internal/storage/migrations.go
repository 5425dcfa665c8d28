package storage

import (
	"context"
	"fmt"
	"time"

	"dsf/internal/storage/migrate"
)

// MigrationsConfig controls schema migrations.
type MigrationsConfig struct {
	// VerifyChecksums compares applied migration files with the embedded ones.
	VerifyChecksums bool

	// OnChecksumMismatch is "fail", "warn" or "ignore".
	OnChecksumMismatch string

	LockTimeoutSeconds int
}

// DefaultMigrationsConfig returns the default migration settings.
func DefaultMigrationsConfig() MigrationsConfig {
	return MigrationsConfig{
		VerifyChecksums:    true,
		OnChecksumMismatch: "fail",
		LockTimeoutSeconds: 15,
	}
}

func (c MigrationsConfig) manager() migrate.Config {
	if c.LockTimeoutSeconds == 0 {
		c.LockTimeoutSeconds = 15
	}
	if c.OnChecksumMismatch == "" {
		c.OnChecksumMismatch = "fail"
	}
	return migrate.Config{
		VerifyChecksums:    c.VerifyChecksums,
		OnChecksumMismatch: c.OnChecksumMismatch,
		LockTimeout:        time.Duration(c.LockTimeoutSeconds) * time.Second,
		Logger:             Logger("migrations"),
	}
}

// RunMigrations brings the schema of store up to date.
func RunMigrations(ctx context.Context, store Store, cfg MigrationsConfig) error {
	db := store.DB()

	// a crash mid-migration leaves the version dirty; every statement in the
	// schema is idempotent so the flag can be cleared and the step retried
	var version uint
	var dirty bool
	err := db.QueryRowContext(ctx, "SELECT version, dirty FROM "+migrate.MigrationsTable+" LIMIT 1").Scan(&version, &dirty)
	if err == nil && dirty {
		stmt := "DELETE FROM " + migrate.MigrationsTable
		var args []any
		if version > 1 {
			stmt = "UPDATE " + migrate.MigrationsTable + " SET dirty = 0, version = ?"
			args = append(args, int(version)-1)
		}
		if _, err := db.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("%w: clean dirty state: %v", ErrMigrationFailed, err)
		}
		Logger("migrations").Warn("cleaned dirty migration state", "version", version)
	}
	// ignore the error when the table doesn't exist (first run)

	mgr, err := migrate.NewSQLiteManager(db, cfg.manager())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMigrationFailed, err)
	}
	// the manager is not closed: its driver would close the store's connection

	if err := mgr.Up(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrMigrationFailed, err)
	}
	return nil
}

// RollbackMigration rolls back the last migration.
func RollbackMigration(ctx context.Context, store Store, cfg MigrationsConfig) error {
	mgr, err := migrate.NewSQLiteManager(store.DB(), cfg.manager())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMigrationFailed, err)
	}
	return mgr.Down(ctx)
}

// MigrationStatus lists the embedded migrations and whether they are applied.
func MigrationStatus(ctx context.Context, store Store) ([]migrate.MigrationInfo, error) {
	mgr, err := migrate.NewSQLiteManager(store.DB(), DefaultMigrationsConfig().manager())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMigrationFailed, err)
	}
	return mgr.List(ctx)
}
