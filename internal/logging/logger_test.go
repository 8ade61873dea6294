package logging

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInitializeCreatesLogFile(t *testing.T) {
	dir := t.TempDir()
	if err := Initialize(dir, true, nil); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer CloseAll()

	Get(CategoryGraph).Info("graph logger online")

	entries, err := os.ReadDir(filepath.Join(dir, ".health", "logs"))
	if err != nil {
		t.Fatalf("read log dir: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected at least one log file")
	}
}

func TestIsCategoryEnabled_DebugOff(t *testing.T) {
	dir := t.TempDir()
	if err := Initialize(dir, false, nil); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer CloseAll()

	if IsCategoryEnabled(CategoryWave) {
		t.Fatal("expected category disabled when debug mode is off")
	}
}

func TestIsCategoryEnabled_Selective(t *testing.T) {
	dir := t.TempDir()
	err := Initialize(dir, true, map[string]bool{
		string(CategoryWave): false,
	})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer CloseAll()

	if IsCategoryEnabled(CategoryWave) {
		t.Fatal("expected CategoryWave disabled by explicit override")
	}
	if !IsCategoryEnabled(CategoryVerify) {
		t.Fatal("expected CategoryVerify enabled by default under debug mode")
	}
}

func TestStartTimerLogsDuration(t *testing.T) {
	dir := t.TempDir()
	if err := Initialize(dir, true, nil); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer CloseAll()

	timer := StartTimer(CategoryCascade, "plan cascade")
	elapsed := timer.Stop()
	if elapsed < 0 {
		t.Fatalf("elapsed duration should be non-negative, got %s", elapsed)
	}
}

func TestGetReturnsStableLoggerPerCategory(t *testing.T) {
	dir := t.TempDir()
	if err := Initialize(dir, true, nil); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer CloseAll()

	a := Get(CategoryAudit)
	b := Get(CategoryAudit)
	if a != b {
		t.Fatal("expected Get to return the same *Logger instance for a category")
	}
}
