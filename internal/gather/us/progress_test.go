package us

import (
	"os"
	"path/filepath"
	"testing"
)

func TestProgressTrackerPersists(t *testing.T) {
	dir := t.TempDir()
	pt, err := loadProgress(dir)
	if err != nil {
		t.Fatalf("loadProgress: %v", err)
	}
	if pt.LastCompleted() != "" {
		t.Errorf("fresh tracker LastCompleted = %q", pt.LastCompleted())
	}
	if err := pt.MarkEmpty([]string{"ZZZZ", "QQQQ", "ZZZZ"}); err != nil {
		t.Fatalf("MarkEmpty: %v", err)
	}
	if err := pt.MarkCompleted("2024-01-05"); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	again, err := loadProgress(dir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !again.IsCompleted("2024-01-05") {
		t.Errorf("reloaded LastCompleted = %q", again.LastCompleted())
	}
	if !again.IsEmpty("QQQQ") || !again.IsEmpty("ZZZZ") {
		t.Errorf("reloaded empty set = %v", again.state.Empty)
	}
	if len(again.state.Empty) != 2 {
		t.Errorf("empty set has %d entries, want 2", len(again.state.Empty))
	}

	if err := again.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if again.IsEmpty("QQQQ") {
		t.Error("Reset kept empty symbols")
	}
	if !again.IsCompleted("2024-01-05") {
		t.Error("Reset dropped the completed date")
	}
}

func TestProgressTrackerRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, progressFile), []byte("empty: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadProgress(dir); err == nil {
		t.Error("expected parse error")
	}
}
