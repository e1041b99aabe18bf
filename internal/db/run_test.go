package db

import (
	"testing"
	"time"
)

func TestCreateRunAssignsDefaults(t *testing.T) {
	db := setupTestDB(t)

	run := &Run{Scenario: "orbit", TargetFPS: 60}
	if err := db.CreateRun(run); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	if run.ID == "" {
		t.Error("expected CreateRun to assign an ID")
	}
	if run.StartedAt.IsZero() {
		t.Error("expected CreateRun to stamp StartedAt")
	}

	got, err := db.GetRun(run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}

	if got.Scenario != "orbit" {
		t.Errorf("expected scenario orbit, got %s", got.Scenario)
	}
	if got.TargetFPS != 60 {
		t.Errorf("expected target fps 60, got %v", got.TargetFPS)
	}
	if got.ConfigJSON != "{}" {
		t.Errorf("expected default config {}, got %s", got.ConfigJSON)
	}
	if got.FinishedAt != nil {
		t.Error("expected unfinished run to have nil FinishedAt")
	}
}

func TestCreateRunPreservesExplicitFields(t *testing.T) {
	db := setupTestDB(t)

	started := time.Date(2026, 3, 14, 9, 26, 53, 589e6, time.UTC)
	run := &Run{
		ID:         "run-explicit",
		Scenario:   "stress",
		StartedAt:  started,
		FrameCount: 900,
		TargetFPS:  72,
		ConfigJSON: `{"meshCount":128}`,
	}
	if err := db.CreateRun(run); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	got, err := db.GetRun("run-explicit")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}

	if got.StartedAt.UnixMilli() != started.UnixMilli() {
		t.Errorf("expected started %v, got %v", started, got.StartedAt)
	}
	if got.FrameCount != 900 {
		t.Errorf("expected frame count 900, got %d", got.FrameCount)
	}
	if got.ConfigJSON != `{"meshCount":128}` {
		t.Errorf("unexpected config JSON: %s", got.ConfigJSON)
	}
}

func TestCreateRunDuplicateID(t *testing.T) {
	db := setupTestDB(t)

	run := &Run{ID: "dup", Scenario: "a", TargetFPS: 60}
	if err := db.CreateRun(run); err != nil {
		t.Fatalf("first CreateRun failed: %v", err)
	}

	if err := db.CreateRun(&Run{ID: "dup", Scenario: "b", TargetFPS: 60}); err == nil {
		t.Error("expected duplicate run ID to be rejected")
	}
}

func TestFinishRun(t *testing.T) {
	db := setupTestDB(t)

	run := &Run{Scenario: "orbit", TargetFPS: 60}
	if err := db.CreateRun(run); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	finished := run.StartedAt.Add(10 * time.Second)
	if err := db.FinishRun(run.ID, finished, 600); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	got, err := db.GetRun(run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}

	if got.FinishedAt == nil {
		t.Fatal("expected FinishedAt to be set")
	}
	if got.FinishedAt.UnixMilli() != finished.UnixMilli() {
		t.Errorf("expected finished %v, got %v", finished, *got.FinishedAt)
	}
	if got.FrameCount != 600 {
		t.Errorf("expected frame count 600, got %d", got.FrameCount)
	}
}

func TestFinishRunNotFound(t *testing.T) {
	db := setupTestDB(t)

	if err := db.FinishRun("no-such-run", time.Now(), 1); err == nil {
		t.Error("expected error finishing an unknown run")
	}
}

func TestGetRunNotFound(t *testing.T) {
	db := setupTestDB(t)

	if _, err := db.GetRun("missing"); err == nil {
		t.Error("expected error for missing run")
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	db := setupTestDB(t)

	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		run := &Run{
			ID:        []string{"run-a", "run-b", "run-c"}[i],
			Scenario:  "orbit",
			StartedAt: base.Add(time.Duration(i) * time.Second),
			TargetFPS: 60,
		}
		if err := db.CreateRun(run); err != nil {
			t.Fatalf("CreateRun %d failed: %v", i, err)
		}
	}

	runs, err := db.ListRuns(0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	if runs[0].ID != "run-c" || runs[1].ID != "run-b" || runs[2].ID != "run-a" {
		t.Errorf("expected newest-first order, got %s, %s, %s", runs[0].ID, runs[1].ID, runs[2].ID)
	}

	limited, err := db.ListRuns(2)
	if err != nil {
		t.Fatalf("ListRuns with limit failed: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected 2 runs with limit, got %d", len(limited))
	}
	if limited[0].ID != "run-c" {
		t.Errorf("expected run-c first, got %s", limited[0].ID)
	}
}
