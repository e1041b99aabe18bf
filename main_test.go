package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLogWritersFor(t *testing.T) {
	tests := []struct {
		name      string
		level     int
		wantDiag  bool
		wantTrace bool
	}{
		{"ops only", 0, false, false},
		{"diag", 1, true, false},
		{"trace", 2, true, true},
		{"past max", 5, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := logWritersFor(tt.level)
			if w.Ops == nil {
				t.Error("ops stream should always be enabled")
			}
			if got := w.Diag != nil; got != tt.wantDiag {
				t.Errorf("diag enabled = %v, want %v", got, tt.wantDiag)
			}
			if got := w.Trace != nil; got != tt.wantTrace {
				t.Errorf("trace enabled = %v, want %v", got, tt.wantTrace)
			}
		})
	}
}

func TestLoadTuningDefaults(t *testing.T) {
	tuning := loadTuning("")
	if tuning == nil {
		t.Fatal("expected built-in defaults for empty path")
	}
	if !tuning.GetSmoothingEnabled() {
		t.Error("defaults should enable smoothing")
	}
}

func TestLoadTuningFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.json")
	if err := os.WriteFile(path, []byte(`{"smoothing_enabled": false}`), 0o644); err != nil {
		t.Fatal(err)
	}
	tuning := loadTuning(path)
	if tuning.GetSmoothingEnabled() {
		t.Error("file setting should override the default")
	}
}

func TestMustPresetKnown(t *testing.T) {
	s := mustPreset("orbit")
	if s.Name != "orbit" {
		t.Errorf("got scenario %q, want orbit", s.Name)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("preset should validate: %v", err)
	}
}
