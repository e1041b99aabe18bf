package db

import (
	"testing"
	"time"
)

// createRunForSummaries inserts a parent run so foreign keys hold.
func createRunForSummaries(t *testing.T, db *DB) *Run {
	t.Helper()

	run := &Run{Scenario: "orbit", TargetFPS: 60}
	if err := db.CreateRun(run); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	return run
}

func TestFrameSummaryRoundtrip(t *testing.T) {
	db := setupTestDB(t)
	run := createRunForSummaries(t, db)

	sum := &FrameSummary{
		RunID:         run.ID,
		MeanFrameMS:   16.4,
		StddevFrameMS: 2.1,
		P50FrameMS:    15.9,
		P95FrameMS:    21.3,
		P99FrameMS:    24.8,
		MaxFrameMS:    31.2,
		AchievedFPS:   58.7,
		DroppedFrames: 12,
	}
	if err := db.InsertFrameSummary(sum); err != nil {
		t.Fatalf("InsertFrameSummary failed: %v", err)
	}

	got, err := db.GetFrameSummary(run.ID)
	if err != nil {
		t.Fatalf("GetFrameSummary failed: %v", err)
	}

	if got.MeanFrameMS != 16.4 {
		t.Errorf("expected mean 16.4, got %v", got.MeanFrameMS)
	}
	if got.P99FrameMS != 24.8 {
		t.Errorf("expected p99 24.8, got %v", got.P99FrameMS)
	}
	if got.AchievedFPS != 58.7 {
		t.Errorf("expected fps 58.7, got %v", got.AchievedFPS)
	}
	if got.DroppedFrames != 12 {
		t.Errorf("expected 12 dropped, got %d", got.DroppedFrames)
	}
}

func TestFrameSummaryNotFound(t *testing.T) {
	db := setupTestDB(t)

	if _, err := db.GetFrameSummary("ghost"); err == nil {
		t.Error("expected error for missing frame summary")
	}
}

func TestFrameSummaryRequiresRun(t *testing.T) {
	db := setupTestDB(t)

	err := db.InsertFrameSummary(&FrameSummary{RunID: "ghost", MeanFrameMS: 16})
	if err == nil {
		t.Error("expected foreign key to reject summary for unknown run")
	}
}

func TestMemorySnapshotsListInCaptureOrder(t *testing.T) {
	db := setupTestDB(t)
	run := createRunForSummaries(t, db)

	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	for i, heapUsed := range []int64{100 << 20, 120 << 20, 140 << 20} {
		snap := &MemorySnapshot{
			RunID:       run.ID,
			TakenAt:     base.Add(time.Duration(i) * 5 * time.Second),
			HeapUsed:    heapUsed,
			HeapTotal:   512 << 20,
			HeapPercent: float64(heapUsed) / float64(512<<20) * 100,
			Geometries:  40 + i,
			Textures:    12,
			Programs:    6,
		}
		if err := db.InsertMemorySnapshot(snap); err != nil {
			t.Fatalf("InsertMemorySnapshot %d failed: %v", i, err)
		}
		if snap.ID == 0 {
			t.Errorf("expected snapshot %d to get a row ID", i)
		}
	}

	snaps, err := db.ListMemorySnapshots(run.ID)
	if err != nil {
		t.Fatalf("ListMemorySnapshots failed: %v", err)
	}
	if len(snaps) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(snaps))
	}

	for i := 1; i < len(snaps); i++ {
		if snaps[i].TakenAt.Before(snaps[i-1].TakenAt) {
			t.Error("expected snapshots in capture order")
		}
	}
	if snaps[0].HeapUsed != 100<<20 {
		t.Errorf("expected first snapshot heap 100MB, got %d", snaps[0].HeapUsed)
	}
	if snaps[2].Geometries != 42 {
		t.Errorf("expected last snapshot 42 geometries, got %d", snaps[2].Geometries)
	}
}

func TestMemorySnapshotsEmptyRun(t *testing.T) {
	db := setupTestDB(t)
	run := createRunForSummaries(t, db)

	snaps, err := db.ListMemorySnapshots(run.ID)
	if err != nil {
		t.Fatalf("ListMemorySnapshots failed: %v", err)
	}
	if len(snaps) != 0 {
		t.Errorf("expected no snapshots, got %d", len(snaps))
	}
}

func TestTrackingSummaryRoundtrip(t *testing.T) {
	db := setupTestDB(t)
	run := createRunForSummaries(t, db)

	sum := &TrackingSummary{
		RunID:        run.ID,
		TotalFrames:  600,
		LostFrames:   23,
		AvgStability: 0.91,
		AvgAccuracy:  0.87,
		AvgLatencyMS: 3.4,
		FinalPhase:   "tracking",
	}
	if err := db.InsertTrackingSummary(sum); err != nil {
		t.Fatalf("InsertTrackingSummary failed: %v", err)
	}

	got, err := db.GetTrackingSummary(run.ID)
	if err != nil {
		t.Fatalf("GetTrackingSummary failed: %v", err)
	}

	if got.TotalFrames != 600 {
		t.Errorf("expected 600 total frames, got %d", got.TotalFrames)
	}
	if got.LostFrames != 23 {
		t.Errorf("expected 23 lost frames, got %d", got.LostFrames)
	}
	if got.AvgStability != 0.91 {
		t.Errorf("expected stability 0.91, got %v", got.AvgStability)
	}
	if got.FinalPhase != "tracking" {
		t.Errorf("expected final phase tracking, got %s", got.FinalPhase)
	}
}

func TestTrackingSummaryNotFound(t *testing.T) {
	db := setupTestDB(t)

	if _, err := db.GetTrackingSummary("ghost"); err == nil {
		t.Error("expected error for missing tracking summary")
	}
}
