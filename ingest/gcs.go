package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"
)

// GCSBlobstore stores staged uploads in a Google Cloud Storage bucket
// under a key prefix.
type GCSBlobstore struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSBlobstore builds a GCS client from application-default
// credentials.
func NewGCSBlobstore(ctx context.Context, bucket, prefix string) (*GCSBlobstore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCSBlobstore{client: client, bucket: bucket, prefix: prefix}, nil
}

func (g *GCSBlobstore) object(hash string) *storage.ObjectHandle {
	return g.client.Bucket(g.bucket).Object(path.Join(g.prefix, hash))
}

// Put implements Blobstore.
func (g *GCSBlobstore) Put(ctx context.Context, hash string, data []byte) error {
	w := g.object(hash).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("gcs write %s: %w", hash, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs close %s: %w", hash, err)
	}
	return nil
}

// Get implements Blobstore.
func (g *GCSBlobstore) Get(ctx context.Context, hash string) ([]byte, error) {
	r, err := g.object(hash).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs read %s: %w", hash, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Has implements Blobstore.
func (g *GCSBlobstore) Has(ctx context.Context, hash string) (bool, error) {
	_, err := g.object(hash).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("gcs attrs %s: %w", hash, err)
}
