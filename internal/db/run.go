package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run represents one recorded session or benchmark execution.
type Run struct {
	ID         string     `json:"id"`
	Scenario   string     `json:"scenario"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	FrameCount int        `json:"frame_count"`
	TargetFPS  float64    `json:"target_fps"`
	ConfigJSON string     `json:"config_json"`
}

// CreateRun inserts a new run row. An empty ID gets a fresh UUID and a zero
// StartedAt is stamped with the current time; both are written back to run.
func (db *DB) CreateRun(run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.ConfigJSON == "" {
		run.ConfigJSON = "{}"
	}

	query := `
		INSERT INTO runs (
			id, scenario, started_unix_ms, frame_count, target_fps, config_json
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := db.DB.Exec(
		query,
		run.ID,
		run.Scenario,
		run.StartedAt.UnixMilli(),
		run.FrameCount,
		run.TargetFPS,
		run.ConfigJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// FinishRun stamps the end time and final frame count on an existing run.
func (db *DB) FinishRun(id string, finishedAt time.Time, frameCount int) error {
	result, err := db.DB.Exec(
		`UPDATE runs SET finished_unix_ms = ?, frame_count = ? WHERE id = ?`,
		finishedAt.UnixMilli(), frameCount, id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("run not found: %s", id)
	}

	return nil
}

// GetRun retrieves a run by ID.
func (db *DB) GetRun(id string) (*Run, error) {
	query := `
		SELECT id, scenario, started_unix_ms, finished_unix_ms,
			frame_count, target_fps, config_json
		FROM runs
		WHERE id = ?
	`

	var run Run
	var startedMS int64
	var finishedMS sql.NullInt64

	err := db.DB.QueryRow(query, id).Scan(
		&run.ID,
		&run.Scenario,
		&startedMS,
		&finishedMS,
		&run.FrameCount,
		&run.TargetFPS,
		&run.ConfigJSON,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	run.StartedAt = time.UnixMilli(startedMS)
	if finishedMS.Valid {
		t := time.UnixMilli(finishedMS.Int64)
		run.FinishedAt = &t
	}

	return &run, nil
}

// ListRuns returns the most recently started runs, newest first. A limit of
// zero or less returns all runs.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	query := `
		SELECT id, scenario, started_unix_ms, finished_unix_ms,
			frame_count, target_fps, config_json
		FROM runs
		ORDER BY started_unix_ms DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.DB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var startedMS int64
		var finishedMS sql.NullInt64

		err := rows.Scan(
			&run.ID,
			&run.Scenario,
			&startedMS,
			&finishedMS,
			&run.FrameCount,
			&run.TargetFPS,
			&run.ConfigJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		run.StartedAt = time.UnixMilli(startedMS)
		if finishedMS.Valid {
			t := time.UnixMilli(finishedMS.Int64)
			run.FinishedAt = &t
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	return runs, nil
}
