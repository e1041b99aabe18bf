// Package db persists scene sessions and benchmark results to SQLite.
//
// Schema changes ship as numbered migrations embedded in the binary; see
// migrate.go for the tooling that applies them.
package db

import (
	"database/sql"
	"fmt"
	"sort"

	_ "modernc.org/sqlite"

	"github.com/anchorlight/framekit/internal/units"
)

// DB wraps the shared SQLite handle for the results database.
type DB struct {
	*sql.DB
}

// NewDB opens (creating if necessary) the results database at dbPath.
//
// Pragmas are passed in the DSN so every pooled connection gets them, not
// just the one that happened to run an Exec.
func NewDB(dbPath string) (*DB, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		dsn = "file:" + dbPath +
			"?_pragma=journal_mode(WAL)" +
			"&_pragma=busy_timeout(5000)" +
			"&_pragma=synchronous(NORMAL)" +
			"&_pragma=temp_store(MEMORY)" +
			"&_pragma=foreign_keys(ON)"
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{sqlDB}, nil
}

// TableStats describes one table's contribution to the database file.
type TableStats struct {
	Name     string  `json:"name"`
	RowCount int64   `json:"row_count"`
	SizeMB   float64 `json:"size_mb"`
}

// DatabaseStats summarizes the results database for the debug endpoint.
type DatabaseStats struct {
	SQLiteVersion string       `json:"sqlite_version"`
	TotalSizeMB   float64      `json:"total_size_mb"`
	Tables        []TableStats `json:"tables"`
}

// GetDatabaseStats reports per-table row counts and sizes, largest first.
func (db *DB) GetDatabaseStats() (*DatabaseStats, error) {
	stats := &DatabaseStats{}

	if err := db.DB.QueryRow("SELECT sqlite_version()").Scan(&stats.SQLiteVersion); err != nil {
		return nil, fmt.Errorf("failed to read sqlite version: %w", err)
	}

	var pageCount, pageSize int64
	if err := db.DB.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return nil, fmt.Errorf("failed to read page count: %w", err)
	}
	if err := db.DB.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return nil, fmt.Errorf("failed to read page size: %w", err)
	}
	stats.TotalSizeMB = float64(pageCount*pageSize) / float64(units.MiB)

	rows, err := db.DB.Query(`
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tables: %w", err)
	}

	stats.Tables = make([]TableStats, 0, len(names))
	for _, name := range names {
		ts := TableStats{Name: name}
		if err := db.DB.QueryRow("SELECT COUNT(*) FROM " + name).Scan(&ts.RowCount); err != nil {
			return nil, fmt.Errorf("failed to count %s rows: %w", name, err)
		}
		// dbstat is an optional sqlite build feature; sizes stay zero
		// when it is unavailable.
		var tableBytes sql.NullInt64
		if err := db.DB.QueryRow("SELECT SUM(pgsize) FROM dbstat WHERE name = ?", name).Scan(&tableBytes); err == nil && tableBytes.Valid {
			ts.SizeMB = float64(tableBytes.Int64) / float64(units.MiB)
		}
		stats.Tables = append(stats.Tables, ts)
	}

	sort.Slice(stats.Tables, func(i, j int) bool {
		return stats.Tables[i].SizeMB > stats.Tables[j].SizeMB
	})

	return stats, nil
}
