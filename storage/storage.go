package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Config contains storage configuration
type Config struct {
	BasePath string // Base directory for all stored files
}

// DefaultConfig returns default storage configuration
func DefaultConfig() Config {
	return Config{
		BasePath: "./storage",
	}
}

// Storage handles filesystem storage operations
type Storage struct {
	config Config
}

// New creates a new Storage instance
func New(config Config) (*Storage, error) {
	// Create base directory if it doesn't exist
	if err := os.MkdirAll(config.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base storage directory: %w", err)
	}

	return &Storage{
		config: config,
	}, nil
}

// SaveFrame saves a captured video frame to the filesystem.
// Returns the relative file path from the base storage directory.
func (s *Storage) SaveFrame(frame []byte, name string) (string, error) {
	if name == "" {
		name = uuid.New().String()
	}

	// Generate directory structure: thumbs/YYYY/MM/
	now := time.Now()
	year := fmt.Sprintf("%04d", now.Year())
	month := fmt.Sprintf("%02d", int(now.Month()))

	dirPath := filepath.Join(s.config.BasePath, "thumbs", year, month)

	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create thumbnail directory: %w", err)
	}

	// Frames arrive from the capture agent as PNG
	filename := name + ".png"
	filePath := filepath.Join(dirPath, filename)

	// Check if file already exists and make unique if necessary
	counter := 1
	for fileExists(filePath) {
		filename = fmt.Sprintf("%s-%d.png", name, counter)
		filePath = filepath.Join(dirPath, filename)
		counter++
	}

	if err := os.WriteFile(filePath, frame, 0644); err != nil {
		return "", fmt.Errorf("failed to write thumbnail file: %w", err)
	}

	// Return relative path from base storage directory
	relPath, err := filepath.Rel(s.config.BasePath, filePath)
	if err != nil {
		return "", fmt.Errorf("failed to get relative path: %w", err)
	}

	return relPath, nil
}

// ReadFrame reads a stored frame back from the filesystem
func (s *Storage) ReadFrame(relPath string) ([]byte, error) {
	fullPath := filepath.Join(s.config.BasePath, relPath)

	data, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read thumbnail file: %w", err)
	}

	return data, nil
}

// WriteExport saves an exported match list snapshot to the filesystem.
// Returns the relative file path from the base storage directory.
func (s *Storage) WriteExport(data []byte, name string) (string, error) {
	dirPath := filepath.Join(s.config.BasePath, "exports")

	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	filename := name + ".json"
	filePath := filepath.Join(dirPath, filename)

	counter := 1
	for fileExists(filePath) {
		filename = fmt.Sprintf("%s-%d.json", name, counter)
		filePath = filepath.Join(dirPath, filename)
		counter++
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}

	relPath, err := filepath.Rel(s.config.BasePath, filePath)
	if err != nil {
		return "", fmt.Errorf("failed to get relative path: %w", err)
	}

	return relPath, nil
}

// DeleteFrame deletes a stored frame from the filesystem
func (s *Storage) DeleteFrame(relPath string) error {
	fullPath := filepath.Join(s.config.BasePath, relPath)

	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete thumbnail file: %w", err)
	}

	return nil
}

// GetFullPath returns the full filesystem path for a relative path
func (s *Storage) GetFullPath(relPath string) string {
	return filepath.Join(s.config.BasePath, relPath)
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
