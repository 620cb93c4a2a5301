// Package statestore provides durable, crash-safe checkpoint storage
// keyed by workflow id.
//
// Writes go to a temp file in the same directory and are renamed into
// place, so a crash mid-write never corrupts the last good checkpoint.
package statestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store persists one JSON checkpoint file per key.
type Store struct {
	baseDir string
}

// NewStore creates a store rooted at baseDir, creating it if needed.
func NewStore(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", baseDir, err)
	}
	return &Store{baseDir: baseDir}, nil
}

// Save atomically persists state under key. The previous checkpoint
// remains intact if the process dies before the rename.
func (s *Store) Save(key string, state any) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state for %s: %w", key, err)
	}

	return s.writeAtomic(s.filename(key), data)
}

// Load reads the checkpoint for key into out. A missing key is not an
// error: Load returns (false, nil) and callers initialize fresh state.
func (s *Store) Load(key string, out any) (bool, error) {
	if key == "" {
		return false, fmt.Errorf("key cannot be empty")
	}

	data, err := os.ReadFile(s.filename(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read state file for %s: %w", key, err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to unmarshal state for %s: %w", key, err)
	}
	return true, nil
}

// Delete removes the checkpoint for key. Deleting a missing key is a no-op.
func (s *Store) Delete(key string) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}

	err := os.Remove(s.filename(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete state file for %s: %w", key, err)
	}
	return nil
}

// Archive renames the checkpoint for key to a .done file, preserving it
// for audit while marking the run complete. Archiving a missing key is
// a no-op.
func (s *Store) Archive(key string) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}

	src := s.filename(key)
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return nil
	}
	if err := os.Rename(src, src+".done"); err != nil {
		return fmt.Errorf("failed to archive state file for %s: %w", key, err)
	}
	return nil
}

// List returns the keys with a live (non-archived) checkpoint.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read state directory: %w", err)
	}

	var keys []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".json") {
			keys = append(keys, strings.TrimSuffix(name, ".json"))
		}
	}
	return keys, nil
}

// writeAtomic writes content to a same-directory temp file, syncs it,
// then renames it over path.
func (s *Store) writeAtomic(path string, content []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".checkpoint-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	defer func() {
		// Clean up the temp file on any failure path.
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("atomic rename: %w", err)
	}
	return nil
}

func (s *Store) filename(key string) string {
	return filepath.Join(s.baseDir, sanitizeKey(key)+".json")
}

// sanitizeKey makes a key safe for use as a filename.
func sanitizeKey(key string) string {
	sanitized := strings.ReplaceAll(key, "/", "-")
	sanitized = strings.ReplaceAll(sanitized, "\\", "-")
	sanitized = strings.ReplaceAll(sanitized, ":", "-")
	sanitized = strings.ReplaceAll(sanitized, " ", "-")
	return sanitized
}
