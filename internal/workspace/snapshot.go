package workspace

import (
	"crypto/sha256"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// FileState is what a Snapshot records per file.
type FileState struct {
	Size  int64
	Mtime int64 // UnixNano
	Hash  string
}

// Snapshot maps workspace-relative paths (slash separated) to their state.
type Snapshot map[string]FileState

// Take walks root and records every file the matcher does not ignore.
// prev, if non-nil, lets unchanged files (same size and mtime) skip hashing.
func Take(root string, matcher Matcher, prev Snapshot) (Snapshot, error) {
	snap := Snapshot{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// vanished between readdir and stat
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if matcher != nil && matcher.MatchesPath(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		st := FileState{Size: info.Size(), Mtime: info.ModTime().UnixNano()}
		if old, ok := prev[rel]; ok && old.Size == st.Size && old.Mtime == st.Mtime {
			st.Hash = old.Hash
		} else if st.Hash, err = hashFile(path); err != nil {
			return nil
		}
		snap[rel] = st
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", root, err)
	}
	return snap, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// Changes lists files created or modified between before and after, sorted.
func Changes(before, after Snapshot) []string {
	var changed []string
	for path, st := range after {
		old, ok := before[path]
		if !ok || old.Hash != st.Hash {
			changed = append(changed, path)
		}
	}
	sort.Strings(changed)
	return changed
}

// Removed lists files present in before but missing from after, sorted.
func Removed(before, after Snapshot) []string {
	var removed []string
	for path := range before {
		if _, ok := after[path]; !ok {
			removed = append(removed, path)
		}
	}
	sort.Strings(removed)
	return removed
}
