package db

import (
	"path/filepath"
	"testing"
)

// The failure paths of RunMigrateCommand call log.Fatalf, so only the happy
// paths are exercised here.

func TestRunMigrateCommandUp(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cli_test.db")

	RunMigrateCommand([]string{"up"}, dbPath)

	db, err := NewDB(dbPath)
	if err != nil {
		t.Fatalf("failed to reopen database: %v", err)
	}
	defer db.Close()

	fsys, err := MigrationsFS()
	if err != nil {
		t.Fatalf("MigrationsFS failed: %v", err)
	}

	version, dirty, err := db.MigrateVersion(fsys)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	latest, err := GetLatestMigrationVersion(fsys)
	if err != nil {
		t.Fatalf("GetLatestMigrationVersion failed: %v", err)
	}
	if version != latest {
		t.Errorf("expected version %d after up, got %d", latest, version)
	}
	if dirty {
		t.Error("expected clean state after up")
	}
}

func TestRunMigrateCommandVersion(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cli_test.db")

	RunMigrateCommand([]string{"version", "2"}, dbPath)

	db, err := NewDB(dbPath)
	if err != nil {
		t.Fatalf("failed to reopen database: %v", err)
	}
	defer db.Close()

	fsys, err := MigrationsFS()
	if err != nil {
		t.Fatalf("MigrationsFS failed: %v", err)
	}

	version, _, err := db.MigrateVersion(fsys)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 2 {
		t.Errorf("expected version 2, got %d", version)
	}
}

func TestRunMigrateCommandStatus(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cli_test.db")

	// Status on a fresh database must not fail.
	RunMigrateCommand([]string{"status"}, dbPath)
}

func TestRunMigrateCommandNoArgs(t *testing.T) {
	// No subcommand prints usage without touching the database.
	RunMigrateCommand(nil, filepath.Join(t.TempDir(), "untouched.db"))
}

func TestRunMigrateCommandUnknown(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cli_test.db")

	RunMigrateCommand([]string{"frobnicate"}, dbPath)
}
