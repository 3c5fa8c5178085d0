package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalBlobstore persists blobs as files under <staging_dir>/<hash>, the
// default backend (spec.md §6).
type LocalBlobstore struct {
	dir string
}

// NewLocalBlobstore creates the staging directory if needed and returns a
// blobstore rooted at it.
func NewLocalBlobstore(dir string) (*LocalBlobstore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &LocalBlobstore{dir: dir}, nil
}

func (l *LocalBlobstore) path(hash string) string {
	return filepath.Join(l.dir, hash)
}

// Put implements Blobstore.
func (l *LocalBlobstore) Put(ctx context.Context, hash string, data []byte) error {
	if has, _ := l.Has(ctx, hash); has {
		return nil
	}
	return os.WriteFile(l.path(hash), data, 0644)
}

// Get implements Blobstore.
func (l *LocalBlobstore) Get(ctx context.Context, hash string) ([]byte, error) {
	return os.ReadFile(l.path(hash))
}

// Has implements Blobstore.
func (l *LocalBlobstore) Has(ctx context.Context, hash string) (bool, error) {
	_, err := os.Stat(l.path(hash))
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}
