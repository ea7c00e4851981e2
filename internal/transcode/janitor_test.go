package transcode

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeCacheFile(t *testing.T, root, name string, size int, modTime time.Time) string {
	t.Helper()
	path := filepath.Join(root, name)
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("failed to write test cache file: %v", err)
	}
	if err := os.Chtimes(path, modTime, modTime); err != nil {
		t.Fatalf("failed to set mtime: %v", err)
	}
	return path
}

func TestSweepRemovesFilesOlderThanMaxAge(t *testing.T) {
	root := t.TempDir()
	old := writeCacheFile(t, root, "old", 10, time.Now().Add(-2*time.Hour))
	fresh := writeCacheFile(t, root, "fresh", 10, time.Now())

	j := NewJanitor(root)
	result, err := j.Sweep(time.Hour, 0)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if result.FilesRemoved != 1 {
		t.Fatalf("expected 1 file removed, got %d", result.FilesRemoved)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatal("expected old file to be removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatal("expected fresh file to survive")
	}
}

func TestSweepEvictsOldestFirstWhenOverByteBudget(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	writeCacheFile(t, root, "a", 100, now.Add(-3*time.Hour))
	writeCacheFile(t, root, "b", 100, now.Add(-2*time.Hour))
	c := writeCacheFile(t, root, "c", 100, now.Add(-1*time.Hour))

	j := NewJanitor(root)
	result, err := j.Sweep(0, 150)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if result.FilesRemoved != 2 {
		t.Fatalf("expected 2 files removed to get under budget, got %d", result.FilesRemoved)
	}
	if _, err := os.Stat(c); err != nil {
		t.Fatal("expected newest file to survive")
	}
}

func TestSweepNoopWhenUnderBudgetAndFresh(t *testing.T) {
	root := t.TempDir()
	writeCacheFile(t, root, "a", 10, time.Now())

	j := NewJanitor(root)
	result, err := j.Sweep(time.Hour, 1<<20)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if result.FilesRemoved != 0 || result.FilesKept != 1 {
		t.Fatalf("expected noop sweep, got removed=%d kept=%d", result.FilesRemoved, result.FilesKept)
	}
}
