package db

import (
	"fmt"
	"io/fs"
	"log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// migrateLogger adapts the standard logger to migrate's Logger interface.
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	log.Printf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// newMigrate builds a migrate instance reading from migrationsFS, whose
// root must contain the NNNNNN_name.up.sql / .down.sql files.
//
// The returned instance must never be Closed: closing it would close the
// shared database handle out from under the caller.
func (db *DB) newMigrate(migrationsFS fs.FS) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to open migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}

	return m, nil
}

// MigrateUp applies all pending migrations. Running against an up-to-date
// database is a no-op.
func (db *DB) MigrateUp(migrationsFS fs.FS) error {
	m, err := db.newMigrate(migrationsFS)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration up failed: %w", err)
	}

	return nil
}

// MigrateDown rolls back the most recent migration.
func (db *DB) MigrateDown(migrationsFS fs.FS) error {
	m, err := db.newMigrate(migrationsFS)
	if err != nil {
		return err
	}

	if err := m.Steps(-1); err != nil {
		return fmt.Errorf("migration down failed: %w", err)
	}

	return nil
}

// MigrateTo migrates up or down until the schema sits at targetVersion.
func (db *DB) MigrateTo(migrationsFS fs.FS, targetVersion uint) error {
	m, err := db.newMigrate(migrationsFS)
	if err != nil {
		return err
	}

	if err := m.Migrate(targetVersion); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration to version %d failed: %w", targetVersion, err)
	}

	return nil
}

// MigrateForce overwrites the recorded schema version without running any
// migrations, clearing the dirty flag. Recovery tool for migrations that
// failed mid-execution.
func (db *DB) MigrateForce(migrationsFS fs.FS, version int) error {
	m, err := db.newMigrate(migrationsFS)
	if err != nil {
		return err
	}

	if err := m.Force(version); err != nil {
		return fmt.Errorf("force migration to version %d failed: %w", version, err)
	}

	return nil
}

// MigrateVersion reports the current schema version and dirty flag. A fresh
// database with no recorded version returns (0, false, nil).
func (db *DB) MigrateVersion(migrationsFS fs.FS) (uint, bool, error) {
	m, err := db.newMigrate(migrationsFS)
	if err != nil {
		return 0, false, err
	}

	version, dirty, err := m.Version()
	if err == migrate.ErrNilVersion {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read migration version: %w", err)
	}

	return version, dirty, nil
}

// GetMigrationStatus collects the details the status subcommand prints.
func (db *DB) GetMigrationStatus(migrationsFS fs.FS) (map[string]interface{}, error) {
	status := make(map[string]interface{})

	var tableExists bool
	err := db.DB.QueryRow(`
		SELECT COUNT(*) > 0 FROM sqlite_master
		WHERE type = 'table' AND name = 'schema_migrations'
	`).Scan(&tableExists)
	if err != nil {
		return nil, fmt.Errorf("failed to check schema_migrations table: %w", err)
	}
	status["schema_migrations_exists"] = tableExists

	version, dirty, err := db.MigrateVersion(migrationsFS)
	if err != nil {
		return nil, err
	}
	status["current_version"] = version
	status["dirty"] = dirty

	latest, err := GetLatestMigrationVersion(migrationsFS)
	if err != nil {
		return nil, err
	}
	status["latest_available"] = latest

	return status, nil
}

// ensureSchemaMigrationsTable creates the version-tracking table with the
// same shape the migrate sqlite driver uses.
func (db *DB) ensureSchemaMigrationsTable() error {
	_, err := db.DB.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version uint64,
			dirty bool
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}
	return nil
}

// BaselineAtVersion marks an existing database as already migrated to the
// given version without running anything. Intended for databases created
// before migrations were introduced; refuses to touch a database that
// already has migration history.
func (db *DB) BaselineAtVersion(version uint) error {
	if err := db.ensureSchemaMigrationsTable(); err != nil {
		return err
	}

	var count int
	if err := db.DB.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&count); err != nil {
		return fmt.Errorf("failed to check migration history: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("database already has migration history; refusing to baseline")
	}

	if _, err := db.DB.Exec(
		`INSERT INTO schema_migrations (version, dirty) VALUES (?, false)`,
		version,
	); err != nil {
		return fmt.Errorf("failed to record baseline version: %w", err)
	}

	return nil
}

// GetLatestMigrationVersion finds the highest version among the *.up.sql
// files in migrationsFS.
func GetLatestMigrationVersion(migrationsFS fs.FS) (uint, error) {
	matches, err := fs.Glob(migrationsFS, "*.up.sql")
	if err != nil {
		return 0, fmt.Errorf("failed to list migration files: %w", err)
	}
	if len(matches) == 0 {
		return 0, fmt.Errorf("no migration files found")
	}

	var latest uint
	for _, name := range matches {
		var version uint
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version > latest {
			latest = version
		}
	}

	return latest, nil
}
