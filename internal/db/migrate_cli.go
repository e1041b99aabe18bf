package db

import (
	"fmt"
	"io/fs"
	"log"
	"strings"
)

// RunMigrateCommand dispatches the `framekit migrate ...` subcommands.
// Handlers exit the process on failure; this is CLI plumbing, not library
// code.
func RunMigrateCommand(args []string, dbPath string) {
	if len(args) == 0 {
		printMigrateUsage()
		return
	}

	database, err := NewDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to open database %s: %v", dbPath, err)
	}
	defer database.Close()

	migrationsFS, err := getMigrationsFS()
	if err != nil {
		log.Fatalf("Failed to load migrations: %v", err)
	}

	switch args[0] {
	case "up":
		handleMigrateUp(database, migrationsFS)
	case "down":
		handleMigrateDown(database, migrationsFS)
	case "status":
		handleMigrateStatus(database, migrationsFS)
	case "version":
		if len(args) < 2 {
			log.Fatalf("Usage: framekit migrate version <N>")
		}
		handleMigrateVersion(database, migrationsFS, args[1])
	case "force":
		if len(args) < 2 {
			log.Fatalf("Usage: framekit migrate force <N>")
		}
		handleMigrateForce(database, migrationsFS, args[1])
	case "baseline":
		if len(args) < 2 {
			log.Fatalf("Usage: framekit migrate baseline <N>")
		}
		handleMigrateBaseline(database, args[1])
	case "help":
		printMigrateUsage()
	default:
		fmt.Printf("Unknown migrate subcommand: %s\n\n", args[0])
		printMigrateUsage()
	}
}

func handleMigrateUp(database *DB, migrationsFS fs.FS) {
	before, _, err := database.MigrateVersion(migrationsFS)
	if err != nil {
		log.Fatalf("Failed to read current version: %v", err)
	}

	if err := database.MigrateUp(migrationsFS); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	after, _, err := database.MigrateVersion(migrationsFS)
	if err != nil {
		log.Fatalf("Failed to read new version: %v", err)
	}

	if after == before {
		fmt.Printf("Database already up to date at version %d\n", after)
	} else {
		fmt.Printf("Migrated from version %d to %d\n", before, after)
	}
}

func handleMigrateDown(database *DB, migrationsFS fs.FS) {
	if err := database.MigrateDown(migrationsFS); err != nil {
		log.Fatalf("Rollback failed: %v", err)
	}

	version, _, err := database.MigrateVersion(migrationsFS)
	if err != nil {
		log.Fatalf("Failed to read new version: %v", err)
	}
	fmt.Printf("Rolled back one migration; now at version %d\n", version)
}

func handleMigrateStatus(database *DB, migrationsFS fs.FS) {
	status, err := database.GetMigrationStatus(migrationsFS)
	if err != nil {
		log.Fatalf("Failed to get migration status: %v", err)
	}

	fmt.Println("=== Migration Status ===")
	fmt.Printf("Current version: %v\n", status["current_version"])
	fmt.Printf("Latest available: %v\n", status["latest_available"])
	fmt.Printf("Dirty: %v\n", status["dirty"])
	fmt.Printf("Schema migrations table exists: %v\n", status["schema_migrations_exists"])

	if dirty, ok := status["dirty"].(bool); ok && dirty {
		fmt.Println("\nWARNING: Database is in a dirty state!")
		fmt.Println("A migration failed mid-execution. You may need to:")
		fmt.Println("  1. Inspect the database manually")
		fmt.Println("  2. Fix any issues")
		fmt.Println("  3. Run: framekit migrate force <version>")
	}
}

func handleMigrateVersion(database *DB, migrationsFS fs.FS, versionStr string) {
	var targetVersion uint
	if _, err := fmt.Sscanf(versionStr, "%d", &targetVersion); err != nil {
		log.Fatalf("Invalid version number: %s", versionStr)
	}

	if err := database.MigrateTo(migrationsFS, targetVersion); err != nil {
		log.Fatalf("Migration to version %d failed: %v", targetVersion, err)
	}

	fmt.Printf("Database now at version %d\n", targetVersion)
}

func handleMigrateForce(database *DB, migrationsFS fs.FS, versionStr string) {
	var version int
	if _, err := fmt.Sscanf(versionStr, "%d", &version); err != nil {
		log.Fatalf("Invalid version number: %s", versionStr)
	}

	fmt.Printf("Force-setting migration version to %d without running migrations.\n", version)
	fmt.Print("This can leave the schema and version out of sync. Continue? (y/N): ")

	var response string
	fmt.Scanln(&response)
	if !strings.EqualFold(strings.TrimSpace(response), "y") {
		fmt.Println("Aborted.")
		return
	}

	if err := database.MigrateForce(migrationsFS, version); err != nil {
		log.Fatalf("Force migration failed: %v", err)
	}

	fmt.Printf("Migration version forced to %d\n", version)
}

func handleMigrateBaseline(database *DB, versionStr string) {
	var version uint
	if _, err := fmt.Sscanf(versionStr, "%d", &version); err != nil {
		log.Fatalf("Invalid version number: %s", versionStr)
	}

	if err := database.BaselineAtVersion(version); err != nil {
		log.Fatalf("Baseline failed: %v", err)
	}

	fmt.Printf("Database baselined at version %d\n", version)
}

func printMigrateUsage() {
	fmt.Println(`Usage: framekit migrate <subcommand>

Subcommands:
  up               Apply all pending migrations
  down             Roll back the most recent migration
  status           Show current and latest migration versions
  version <N>      Migrate up or down to version N
  force <N>        Overwrite the recorded version (recovery only)
  baseline <N>     Mark a pre-migration database as already at version N
  help             Show this help

Examples:
  framekit migrate up
  framekit migrate status
  framekit migrate version 2`)
}
