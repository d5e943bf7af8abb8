package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FS implements Provider backed by a single file.
type FS struct {
	path string // absolute path to the credential file
}

// NewFS creates a credential store at path. The parent directory is created
// with owner-only permissions if it does not exist.
func NewFS(path string) (*FS, error) {
	if path == "" {
		return nil, fmt.Errorf("storage: credential path is empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o700); err != nil {
		return nil, fmt.Errorf("storage: mkdir: %w", err)
	}
	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		return nil, fmt.Errorf("storage: credential path is a directory: %s", abs)
	}
	return &FS{path: abs}, nil
}

// Path returns the absolute location of the credential file.
func (f *FS) Path() string {
	return f.path
}

// Load reads the credential file.
func (f *FS) Load() (string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("storage: read credential: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Save atomically writes the credential: tmp file → fsync → rename.
func (f *FS) Save(token string) error {
	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".scribe-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err := tmp.Chmod(0o600); err != nil {
		return fmt.Errorf("storage: chmod temp: %w", err)
	}
	if _, err := tmp.WriteString(token); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// Clear deletes the credential file.
func (f *FS) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: delete credential: %w", err)
	}
	return nil
}
