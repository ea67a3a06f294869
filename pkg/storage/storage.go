// Package storage provides keyed artifact storage for redacted PDFs and
// conversion outputs.
package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no artifact exists under a key.
var ErrNotFound = errors.New("storage: artifact not found")

// ErrInvalidKey is returned for empty keys or keys escaping the root.
var ErrInvalidKey = errors.New("storage: invalid key")

// FileInfo contains metadata about a stored artifact
type FileInfo struct {
	ID          uuid.UUID `json:"id"`
	Key         string    `json:"key"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at"`
}

// Storage defines the interface for artifact storage operations
type Storage interface {
	// Put stores r under key, replacing any previous artifact
	Put(ctx context.Context, key, contentType string, r io.Reader) (*FileInfo, error)

	// Get opens the artifact stored under key
	Get(ctx context.Context, key string) (io.ReadCloser, *FileInfo, error)

	// Stat returns metadata without opening the artifact
	Stat(ctx context.Context, key string) (*FileInfo, error)

	// Delete removes the artifact; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error

	// List returns the artifacts whose key starts with prefix
	List(ctx context.Context, prefix string) ([]*FileInfo, error)
}

// StorageType identifies the storage backend
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
)

// Config holds storage configuration
type Config struct {
	Type      StorageType `yaml:"type"`
	LocalPath string      `yaml:"local_path"`
}

// New creates a new Storage implementation based on configuration
func New(cfg *Config) (Storage, error) {
	switch cfg.Type {
	case StorageTypeLocal, "":
		return NewLocalStorage(cfg.LocalPath)
	default:
		return nil, errors.New("storage: unsupported type " + string(cfg.Type))
	}
}
