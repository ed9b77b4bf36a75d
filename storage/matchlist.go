package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/zombar/feedscan/models"
)

// FileStore persists the match list as a single JSON file. It is the
// fallback store used when no database is configured.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a FileStore backed by the given file path. The
// parent directory is created if it does not exist.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("match list path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create match list directory: %w", err)
	}

	return &FileStore{path: path}, nil
}

// Append adds a record to the match list unless it duplicates an
// existing entry. Returns true when the record was stored.
func (f *FileStore) Append(ctx context.Context, rec models.MatchRecord) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	records, err := f.load()
	if err != nil {
		return false, err
	}

	if models.Duplicate(records, rec) {
		return false, nil
	}

	records = append(records, rec)
	if err := f.save(records); err != nil {
		return false, err
	}

	return true, nil
}

// List returns all stored records in insertion order
func (f *FileStore) List(ctx context.Context) ([]models.MatchRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.load()
}

// Clear removes all stored records
func (f *FileStore) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear match list: %w", err)
	}

	return nil
}

// Count returns the number of stored records
func (f *FileStore) Count(ctx context.Context) (int, error) {
	records, err := f.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

func (f *FileStore) load() ([]models.MatchRecord, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return []models.MatchRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read match list: %w", err)
	}

	var records []models.MatchRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse match list: %w", err)
	}

	return records, nil
}

// save writes through a temp file and renames so a crash mid-write
// never leaves a truncated list behind.
func (f *FileStore) save(records []models.MatchRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode match list: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write match list: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace match list: %w", err)
	}

	return nil
}
