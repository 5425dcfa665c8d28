package storage

import (
	"context"
	"fmt"

	"dsf/internal/config"
)

// OpenSQLite is set by the sqlite package init to avoid import cycles.
var OpenSQLite func(ctx context.Context, cfg config.DatabaseConfig, dataDir string) (Store, error)

// Open creates the store and brings its schema up to date.
// The caller must import the sqlite package to register the factory.
func Open(ctx context.Context, cfg config.DatabaseConfig, dataDir string) (Store, error) {
	if OpenSQLite == nil {
		return nil, fmt.Errorf("%w: sqlite backend not registered (import dsf/internal/storage/sqlite)", ErrConnectionFailed)
	}

	store, err := OpenSQLite(ctx, cfg, dataDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	if err := RunMigrations(ctx, store, DefaultMigrationsConfig()); err != nil {
		store.Close()
		return nil, err
	}

	Logger("open").Debug("store ready", "path", cfg.Path)
	return store, nil
}
