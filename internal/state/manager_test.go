package state

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestNewManager(t *testing.T) {
	tmpDir := t.TempDir()

	manager, err := NewManager(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	defer manager.Close()

	if _, err := os.Stat(filepath.Join(tmpDir, DBFileName)); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestNewManager_EmptyDir(t *testing.T) {
	if _, err := NewManager(""); err == nil {
		t.Error("Expected error for empty directory, got nil")
	}
}

func TestSaveAndGetRun(t *testing.T) {
	m := newManager(t)

	start := time.Now().Add(-2 * time.Second).UTC()
	record := RunRecord{
		RunID:            "run-1",
		Root:             "/games/kcd/Mods",
		Strategy:         "manual",
		Status:           StatusSuccess,
		Archives:         4,
		Documents:        3,
		Conflicts:        1,
		Presets:          12,
		ContributingMods: []string{"mod_a", "mod_b"},
		InputFingerprint: "abc",
		OutputChecksum:   "def",
		StartTime:        start,
		EndTime:          start.Add(2 * time.Second),
	}
	if err := m.SaveRun(record); err != nil {
		t.Fatalf("Failed to save run: %v", err)
	}

	history, err := m.GetHistory("/games/kcd/Mods", 10)
	if err != nil {
		t.Fatalf("Failed to get history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(history))
	}

	got := history[0]
	if got.RunID != "run-1" || got.Strategy != "manual" || got.Presets != 12 {
		t.Errorf("Unexpected record %+v", got)
	}
	if len(got.ContributingMods) != 2 || got.ContributingMods[1] != "mod_b" {
		t.Errorf("Expected contributing mods to round-trip, got %v", got.ContributingMods)
	}
	if got.OutputChecksum != "def" || got.InputFingerprint != "abc" {
		t.Errorf("Expected checksums to round-trip, got %+v", got)
	}
	if got.Duration() != 2*time.Second {
		t.Errorf("Expected duration 2s, got %v", got.Duration())
	}
}

func TestSaveRun_Validation(t *testing.T) {
	m := newManager(t)
	now := time.Now()

	if err := m.SaveRun(RunRecord{RunID: "x", Status: "partial", StartTime: now, EndTime: now}); err == nil {
		t.Error("Expected error for invalid status")
	}
	if err := m.SaveRun(RunRecord{Status: StatusFailed, StartTime: now, EndTime: now}); err == nil {
		t.Error("Expected error for empty run id")
	}

	ok := RunRecord{RunID: "dup", Root: "/r", Strategy: "manual", Status: StatusCancelled, StartTime: now, EndTime: now}
	if err := m.SaveRun(ok); err != nil {
		t.Fatalf("Failed to save run: %v", err)
	}
	if err := m.SaveRun(ok); err == nil {
		t.Error("Expected error for duplicate run id")
	}
}

func TestGetHistory_OrderAndLimit(t *testing.T) {
	m := newManager(t)
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		root := "/a"
		if i%2 == 1 {
			root = "/b"
		}
		err := m.SaveRun(RunRecord{
			RunID:     fmt.Sprintf("run-%d", i),
			Root:      root,
			Strategy:  "highest-value",
			Status:    StatusSuccess,
			StartTime: base.Add(time.Duration(i) * time.Minute),
			EndTime:   base.Add(time.Duration(i)*time.Minute + time.Second),
		})
		if err != nil {
			t.Fatalf("Failed to save run %d: %v", i, err)
		}
	}

	history, err := m.GetHistory("/a", 2)
	if err != nil {
		t.Fatalf("Failed to get history: %v", err)
	}
	if len(history) != 2 || history[0].RunID != "run-4" || history[1].RunID != "run-2" {
		t.Errorf("Expected newest runs of /a first, got %+v", history)
	}

	all, err := m.GetAllHistory(10)
	if err != nil {
		t.Fatalf("Failed to get all history: %v", err)
	}
	if len(all) != 5 || all[0].RunID != "run-4" {
		t.Errorf("Expected 5 runs newest first, got %d", len(all))
	}

	if _, err := m.GetHistory("/a", 0); err == nil {
		t.Error("Expected error for non-positive limit")
	}
	if _, err := m.GetAllHistory(-1); err == nil {
		t.Error("Expected error for non-positive limit")
	}
}

func TestGetLastSuccess(t *testing.T) {
	m := newManager(t)
	now := time.Now()

	last, err := m.GetLastSuccess("/r")
	if err != nil || last != nil {
		t.Fatalf("Expected no record, got %+v (%v)", last, err)
	}

	runs := []RunRecord{
		{RunID: "ok", Status: StatusSuccess, StartTime: now.Add(-2 * time.Minute)},
		{RunID: "bad", Status: StatusFailed, Error: "boom", StartTime: now.Add(-time.Minute)},
	}
	for _, r := range runs {
		r.Root, r.Strategy, r.EndTime = "/r", "manual", r.StartTime
		if err := m.SaveRun(r); err != nil {
			t.Fatalf("Failed to save run: %v", err)
		}
	}

	last, err = m.GetLastSuccess("/r")
	if err != nil {
		t.Fatalf("GetLastSuccess failed: %v", err)
	}
	if last == nil || last.RunID != "ok" {
		t.Errorf("Expected run 'ok', got %+v", last)
	}
}
