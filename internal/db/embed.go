package db

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
)

//go:embed migrations
var migrationsFS embed.FS

// DevMode switches migration loading from the embedded copy to the on-disk
// internal/db/migrations directory, so new migrations can be iterated
// without rebuilding. Set from the binary's -dev flag.
var DevMode = false

// devMigrationsDir is where the migration sources live relative to the
// repository root, which is the working directory DevMode assumes.
const devMigrationsDir = "internal/db/migrations"

// getMigrationsFS returns the migration files with the directory prefix
// stripped, the layout the iofs source driver expects.
func getMigrationsFS() (fs.FS, error) {
	if DevMode {
		if _, err := os.Stat(devMigrationsDir); err != nil {
			return nil, fmt.Errorf("dev mode migrations dir unavailable: %w", err)
		}
		return os.DirFS(devMigrationsDir), nil
	}

	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to access embedded migrations: %w", err)
	}
	return sub, nil
}

// MigrationsFS exposes the packaged migration files for callers that drive
// the Migrate* methods directly.
func MigrationsFS() (fs.FS, error) {
	return getMigrationsFS()
}

// EnsureSchema applies any pending packaged migrations. Safe to call on
// every startup; an up-to-date database is a no-op.
func (db *DB) EnsureSchema() error {
	fsys, err := getMigrationsFS()
	if err != nil {
		return err
	}
	return db.MigrateUp(fsys)
}
