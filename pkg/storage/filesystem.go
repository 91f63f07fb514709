package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// LocalStorage persists uploaded files on disk under a base directory.
// Stored names are generated, never taken from user input.
type LocalStorage struct {
	baseDir  string
	maxBytes int64
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(baseDir string, maxBytes int64) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./uploads"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir, maxBytes: maxBytes}, nil
}

// Save streams an upload into a generated path under prefix, keeping the
// original extension. Returns the relative storage path.
func (s *LocalStorage) Save(prefix, originalName string, r io.Reader) (string, error) {
	rel := filepath.Join(prefix, uuid.NewString()+strings.ToLower(filepath.Ext(originalName)))
	path := filepath.Join(s.baseDir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("prepare upload directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer file.Close() //nolint:errcheck

	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	written, err := io.Copy(file, src)
	if err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("write upload: %w", err)
	}
	if s.maxBytes > 0 && written > s.maxBytes {
		_ = os.Remove(path)
		return "", fmt.Errorf("upload exceeds %d bytes", s.maxBytes)
	}
	return rel, nil
}

// Open returns a read-only handle for the stored file.
func (s *LocalStorage) Open(rel string) (*os.File, error) {
	file, err := os.Open(filepath.Join(s.baseDir, rel))
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	return file, nil
}

// Delete removes a stored file if present.
func (s *LocalStorage) Delete(rel string) error {
	if err := os.Remove(filepath.Join(s.baseDir, rel)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete upload: %w", err)
	}
	return nil
}

// Path exposes the underlying absolute path.
func (s *LocalStorage) Path(rel string) string {
	return filepath.Join(s.baseDir, rel)
}
