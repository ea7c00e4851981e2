package transcode

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Janitor performs manual, admin-triggered cache eviction. There is no
// background ticker: the spec leaves eviction policy as a non-goal, so
// sweeping only ever happens when an operator calls Sweep (DESIGN.md open
// question decision).
type Janitor struct {
	cacheRoot string
}

// NewJanitor returns a Janitor rooted at cacheRoot.
func NewJanitor(cacheRoot string) *Janitor {
	return &Janitor{cacheRoot: cacheRoot}
}

// SweepResult reports what a Sweep call did.
type SweepResult struct {
	FilesRemoved int
	BytesFreed   int64
	FilesKept    int
}

type cacheEntry struct {
	path    string
	size    int64
	modTime time.Time
}

// Sweep removes cache files older than maxAge, then — if the remaining cache
// still exceeds maxBytes — removes the least-recently-modified files until
// it no longer does. A zero maxAge or non-positive maxBytes disables that
// half of the sweep.
func (j *Janitor) Sweep(maxAge time.Duration, maxBytes int64) (SweepResult, error) {
	entries, err := j.listCacheFiles()
	if err != nil {
		return SweepResult{}, err
	}

	var result SweepResult
	now := time.Now()
	var kept []cacheEntry
	for _, e := range entries {
		if maxAge > 0 && now.Sub(e.modTime) > maxAge {
			if rmErr := os.Remove(e.path); rmErr == nil {
				result.FilesRemoved++
				result.BytesFreed += e.size
				continue
			}
			slog.Warn("janitor failed to remove expired cache file", "path", e.path)
		}
		kept = append(kept, e)
	}

	if maxBytes > 0 {
		var total int64
		for _, e := range kept {
			total += e.size
		}
		if total > maxBytes {
			sort.Slice(kept, func(i, k int) bool { return kept[i].modTime.Before(kept[k].modTime) })
			surviving := kept[:0]
			for _, e := range kept {
				if total <= maxBytes {
					surviving = append(surviving, e)
					continue
				}
				if err := os.Remove(e.path); err != nil {
					slog.Warn("janitor failed to remove cache file over budget", "path", e.path)
					surviving = append(surviving, e)
					continue
				}
				result.FilesRemoved++
				result.BytesFreed += e.size
				total -= e.size
			}
			kept = surviving
		}
	}

	result.FilesKept = len(kept)
	return result, nil
}

func (j *Janitor) listCacheFiles() ([]cacheEntry, error) {
	var entries []cacheEntry
	err := filepath.WalkDir(j.cacheRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		entries = append(entries, cacheEntry{path: path, size: info.Size(), modTime: info.ModTime()})
		return nil
	})
	return entries, err
}
