package util

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
)

// SaveSnapshot writes a versioned gob snapshot to path via a temp file and
// atomic rename, so a crash mid-write never leaves a corrupt snapshot.
func SaveSnapshot(path string, version int, payload any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	enc := gob.NewEncoder(tmp)
	if err := enc.Encode(version); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to encode snapshot version: %w", err)
	}
	if err := enc.Encode(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to encode snapshot payload: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close snapshot: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads a versioned gob snapshot written by SaveSnapshot.
// A version mismatch is an error; future migrations hook in here.
func LoadSnapshot(path string, wantVersion int, payload any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := gob.NewDecoder(f)
	var version int
	if err := dec.Decode(&version); err != nil {
		return fmt.Errorf("failed to decode snapshot version: %w", err)
	}
	if version != wantVersion {
		return fmt.Errorf("unsupported snapshot version %d, want %d", version, wantVersion)
	}
	if err := dec.Decode(payload); err != nil {
		return fmt.Errorf("failed to decode snapshot payload: %w", err)
	}
	return nil
}
