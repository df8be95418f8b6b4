package pagecache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// Store holds raw page bytes by cache key.
type Store interface {
	// Get returns ok=false on a miss.
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	Put(ctx context.Context, key string, data []byte) error
	Name() string
}

// DiskStore keeps one file per key under Root.
type DiskStore struct {
	Root string
}

// NewDiskStore creates root if needed.
func NewDiskStore(root string) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, &CacheIOError{Op: "mkdir", Path: root, Err: err}
	}
	return &DiskStore{Root: root}, nil
}

func (s *DiskStore) Name() string { return "disk" }

func (s *DiskStore) path(key string) string { return filepath.Join(s.Root, key) }

func (s *DiskStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, &CacheIOError{Op: "read", Path: s.path(key), Err: err}
	}
	return data, true, nil
}

// Put replaces the entry atomically; readers never observe a partial file.
func (s *DiskStore) Put(_ context.Context, key string, data []byte) error {
	if err := WriteFileAtomic(s.path(key), data); err != nil {
		return &CacheIOError{Op: "write", Path: s.path(key), Err: err}
	}
	return nil
}

// WriteFileAtomic writes data to a temp file next to path and renames it into place.
func WriteFileAtomic(path string, data []byte) error {
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("atomic write: %w", err)
	}
	return nil
}
