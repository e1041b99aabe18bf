package db

import (
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/anchorlight/framekit/internal/httputil"
	"github.com/anchorlight/framekit/internal/monitoring"
	"github.com/anchorlight/framekit/internal/security"
)

// AttachAdminRoutes mounts the operator tooling under /debug/ on mux: a
// tailsql browser over the results database, a db-stats JSON endpoint, and
// an on-demand gzipped backup download. Access control is tsweb's.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://framekit.db", db.DB, &tailsql.DBOptions{
		Label: "Framekit results DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("db-stats", "Table sizes and row counts", http.HandlerFunc(db.handleDBStats))
	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(db.handleBackup))

	return nil
}

func (db *DB) handleDBStats(w http.ResponseWriter, r *http.Request) {
	stats, err := db.GetDatabaseStats()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to collect stats: %v", err))
		return
	}
	httputil.WriteJSONOK(w, stats)
}

func (db *DB) handleBackup(w http.ResponseWriter, r *http.Request) {
	name := fmt.Sprintf("framekit-backup-%d.db", time.Now().Unix())
	backupPath := filepath.Join(os.TempDir(), name)
	if err := security.ValidateExportPath(backupPath); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("backup path rejected: %v", err))
		return
	}

	if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to create backup: %v", err))
		return
	}

	backupFile, err := os.Open(backupPath)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to open backup file: %v", err))
		return
	}
	defer func() {
		backupFile.Close()
		if err := os.Remove(backupPath); err != nil {
			monitoring.Logf("db: remove backup file: %v", err)
		}
	}()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", name))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Encoding", "gzip")

	gzipWriter := gzip.NewWriter(w)
	defer gzipWriter.Close()

	if _, err := io.Copy(gzipWriter, backupFile); err != nil {
		// Headers are gone already; nothing to do but log.
		monitoring.Logf("db: stream backup: %v", err)
	}
}
