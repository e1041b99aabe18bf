package db

import (
	"database/sql"
	"fmt"
	"time"
)

// FrameSummary holds the per-run frame timing aggregate, one row per run.
type FrameSummary struct {
	RunID         string  `json:"run_id"`
	MeanFrameMS   float64 `json:"mean_frame_ms"`
	StddevFrameMS float64 `json:"stddev_frame_ms"`
	P50FrameMS    float64 `json:"p50_frame_ms"`
	P95FrameMS    float64 `json:"p95_frame_ms"`
	P99FrameMS    float64 `json:"p99_frame_ms"`
	MaxFrameMS    float64 `json:"max_frame_ms"`
	AchievedFPS   float64 `json:"achieved_fps"`
	DroppedFrames int64   `json:"dropped_frames"`
}

// InsertFrameSummary records the timing aggregate for a run.
func (db *DB) InsertFrameSummary(sum *FrameSummary) error {
	query := `
		INSERT INTO frame_summaries (
			run_id, mean_frame_ms, stddev_frame_ms, p50_frame_ms,
			p95_frame_ms, p99_frame_ms, max_frame_ms, achieved_fps,
			dropped_frames
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.DB.Exec(
		query,
		sum.RunID,
		sum.MeanFrameMS,
		sum.StddevFrameMS,
		sum.P50FrameMS,
		sum.P95FrameMS,
		sum.P99FrameMS,
		sum.MaxFrameMS,
		sum.AchievedFPS,
		sum.DroppedFrames,
	)
	if err != nil {
		return fmt.Errorf("failed to insert frame summary: %w", err)
	}

	return nil
}

// GetFrameSummary retrieves the timing aggregate for a run.
func (db *DB) GetFrameSummary(runID string) (*FrameSummary, error) {
	query := `
		SELECT run_id, mean_frame_ms, stddev_frame_ms, p50_frame_ms,
			p95_frame_ms, p99_frame_ms, max_frame_ms, achieved_fps,
			dropped_frames
		FROM frame_summaries
		WHERE run_id = ?
	`

	var sum FrameSummary
	err := db.DB.QueryRow(query, runID).Scan(
		&sum.RunID,
		&sum.MeanFrameMS,
		&sum.StddevFrameMS,
		&sum.P50FrameMS,
		&sum.P95FrameMS,
		&sum.P99FrameMS,
		&sum.MaxFrameMS,
		&sum.AchievedFPS,
		&sum.DroppedFrames,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("frame summary not found for run: %s", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get frame summary: %w", err)
	}

	return &sum, nil
}

// MemorySnapshot is one sampled heap/resource reading attributed to a run.
// A run typically stores several, taken at the profiler's sample interval.
type MemorySnapshot struct {
	ID          int64     `json:"id"`
	RunID       string    `json:"run_id"`
	TakenAt     time.Time `json:"taken_at"`
	HeapUsed    int64     `json:"heap_used"`
	HeapTotal   int64     `json:"heap_total"`
	HeapPercent float64   `json:"heap_percent"`
	Geometries  int       `json:"geometries"`
	Textures    int       `json:"textures"`
	Programs    int       `json:"programs"`
}

// InsertMemorySnapshot stores a heap sample and writes the assigned row ID
// back to snap.
func (db *DB) InsertMemorySnapshot(snap *MemorySnapshot) error {
	if snap.TakenAt.IsZero() {
		snap.TakenAt = time.Now()
	}

	query := `
		INSERT INTO memory_snapshots (
			run_id, taken_unix_ms, heap_used, heap_total, heap_percent,
			geometries, textures, programs
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := db.DB.Exec(
		query,
		snap.RunID,
		snap.TakenAt.UnixMilli(),
		snap.HeapUsed,
		snap.HeapTotal,
		snap.HeapPercent,
		snap.Geometries,
		snap.Textures,
		snap.Programs,
	)
	if err != nil {
		return fmt.Errorf("failed to insert memory snapshot: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	snap.ID = id

	return nil
}

// ListMemorySnapshots returns a run's heap samples in capture order.
func (db *DB) ListMemorySnapshots(runID string) ([]MemorySnapshot, error) {
	query := `
		SELECT id, run_id, taken_unix_ms, heap_used, heap_total,
			heap_percent, geometries, textures, programs
		FROM memory_snapshots
		WHERE run_id = ?
		ORDER BY taken_unix_ms ASC, id ASC
	`

	rows, err := db.DB.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memory snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []MemorySnapshot
	for rows.Next() {
		var snap MemorySnapshot
		var takenMS int64

		err := rows.Scan(
			&snap.ID,
			&snap.RunID,
			&takenMS,
			&snap.HeapUsed,
			&snap.HeapTotal,
			&snap.HeapPercent,
			&snap.Geometries,
			&snap.Textures,
			&snap.Programs,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan memory snapshot: %w", err)
		}

		snap.TakenAt = time.UnixMilli(takenMS)
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memory snapshots: %w", err)
	}

	return snaps, nil
}

// TrackingSummary holds the per-run tracking quality aggregate.
type TrackingSummary struct {
	RunID        string  `json:"run_id"`
	TotalFrames  int     `json:"total_frames"`
	LostFrames   int     `json:"lost_frames"`
	AvgStability float64 `json:"avg_stability"`
	AvgAccuracy  float64 `json:"avg_accuracy"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
	FinalPhase   string  `json:"final_phase"`
}

// InsertTrackingSummary records the tracking aggregate for a run.
func (db *DB) InsertTrackingSummary(sum *TrackingSummary) error {
	query := `
		INSERT INTO tracking_summaries (
			run_id, total_frames, lost_frames, avg_stability,
			avg_accuracy, avg_latency_ms, final_phase
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.DB.Exec(
		query,
		sum.RunID,
		sum.TotalFrames,
		sum.LostFrames,
		sum.AvgStability,
		sum.AvgAccuracy,
		sum.AvgLatencyMS,
		sum.FinalPhase,
	)
	if err != nil {
		return fmt.Errorf("failed to insert tracking summary: %w", err)
	}

	return nil
}

// GetTrackingSummary retrieves the tracking aggregate for a run.
func (db *DB) GetTrackingSummary(runID string) (*TrackingSummary, error) {
	query := `
		SELECT run_id, total_frames, lost_frames, avg_stability,
			avg_accuracy, avg_latency_ms, final_phase
		FROM tracking_summaries
		WHERE run_id = ?
	`

	var sum TrackingSummary
	err := db.DB.QueryRow(query, runID).Scan(
		&sum.RunID,
		&sum.TotalFrames,
		&sum.LostFrames,
		&sum.AvgStability,
		&sum.AvgAccuracy,
		&sum.AvgLatencyMS,
		&sum.FinalPhase,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("tracking summary not found for run: %s", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tracking summary: %w", err)
	}

	return &sum, nil
}
