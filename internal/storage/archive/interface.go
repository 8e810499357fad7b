// internal/storage/archive/interface.go
package archive

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrNotFound is returned by Read and Delete when nothing is stored at a path.
var ErrNotFound = errors.New("archive: not found")

// Storage defines the interface for document storage backends
type Storage interface {
	// Write stores data at the given path, replacing any previous value
	Write(ctx context.Context, path string, data []byte) error

	// Read retrieves data from the given path
	Read(ctx context.Context, path string) ([]byte, error)

	// List returns all paths matching the prefix, sorted
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the data at the given path
	Delete(ctx context.Context, path string) error

	// Exists checks if data exists at the given path
	Exists(ctx context.Context, path string) (bool, error)
}

// Config selects and configures a backend.
type Config struct {
	Type string // localfs, s3 or sqlite
	Path string // localfs root directory
	DSN  string // sqlite database file
	S3   S3Config
}

// New opens the backend named by cfg.Type.
func New(cfg Config) (Storage, error) {
	switch cfg.Type {
	case "", "localfs":
		return NewLocalFS(cfg.Path)
	case "s3":
		return NewS3(cfg.S3)
	case "sqlite":
		return NewSQLite(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// cleanPath normalizes a slash-separated relative path and rejects anything
// that would escape the storage root.
func cleanPath(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("empty path")
	}
	if strings.Contains(p, `\`) || strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("invalid path %q", p)
	}
	cleaned := path.Clean(p)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("path %q escapes storage root", p)
	}
	return cleaned, nil
}
