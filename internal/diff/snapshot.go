package diff

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// Snapshot captures the current byte contents of each path under dir as a
// content-addressed copy, so a failed cascade can restore every touched
// file to exactly what it was before regeneration began. Paths that don't
// yet exist are recorded as absent (restored by removal).
type Snapshot struct {
	dir     string
	entries map[string]snapshotEntry
}

type snapshotEntry struct {
	existed bool
	blob    string // hex-encoded content hash, used as the backing filename
}

// NewSnapshot reads every path's current content into dir and returns a
// handle that can restore them later.
func NewSnapshot(dir string, paths []string) (*Snapshot, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("snapshot: create dir: %w", err)
	}
	s := &Snapshot{dir: dir, entries: make(map[string]snapshotEntry, len(paths))}
	for _, p := range paths {
		content, err := os.ReadFile(p)
		if os.IsNotExist(err) {
			s.entries[p] = snapshotEntry{existed: false}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("snapshot: read %s: %w", p, err)
		}
		blob := hex.EncodeToString(hashBytes(content))
		if err := os.WriteFile(filepath.Join(dir, blob), content, 0644); err != nil {
			return nil, fmt.Errorf("snapshot: write blob for %s: %w", p, err)
		}
		s.entries[p] = snapshotEntry{existed: true, blob: blob}
	}
	return s, nil
}

// Restore writes every snapshotted path back to its captured content,
// removing paths that didn't exist when the snapshot was taken.
func (s *Snapshot) Restore() error {
	for p, entry := range s.entries {
		if !entry.existed {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("snapshot: remove %s: %w", p, err)
			}
			continue
		}
		content, err := os.ReadFile(filepath.Join(s.dir, entry.blob))
		if err != nil {
			return fmt.Errorf("snapshot: read blob for %s: %w", p, err)
		}
		if err := os.WriteFile(p, content, 0644); err != nil {
			return fmt.Errorf("snapshot: restore %s: %w", p, err)
		}
	}
	return nil
}

// Drop removes the snapshot's backing storage; called after a cascade
// completes successfully and the snapshot is no longer needed.
func (s *Snapshot) Drop() error {
	return os.RemoveAll(s.dir)
}

func hashBytes(b []byte) []byte {
	h := sha256.Sum256(b)
	return h[:]
}
