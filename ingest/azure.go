package ingest

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// AzureBlobstore stores staged uploads in an Azure Storage container
// under a key prefix.
type AzureBlobstore struct {
	client    *azblob.Client
	container string
	prefix    string
}

// NewAzureBlobstore builds an azblob client from a storage account
// connection string.
func NewAzureBlobstore(connectionString, container, prefix string) (*AzureBlobstore, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("create azblob client: %w", err)
	}
	return &AzureBlobstore{client: client, container: container, prefix: prefix}, nil
}

func (a *AzureBlobstore) blobName(hash string) string {
	return path.Join(a.prefix, hash)
}

// Put implements Blobstore.
func (a *AzureBlobstore) Put(ctx context.Context, hash string, data []byte) error {
	_, err := a.client.UploadBuffer(ctx, a.container, a.blobName(hash), data, nil)
	if err != nil {
		return fmt.Errorf("azblob upload %s: %w", hash, err)
	}
	return nil
}

// Get implements Blobstore.
func (a *AzureBlobstore) Get(ctx context.Context, hash string) ([]byte, error) {
	resp, err := a.client.DownloadStream(ctx, a.container, a.blobName(hash), nil)
	if err != nil {
		return nil, fmt.Errorf("azblob download %s: %w", hash, err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// Has implements Blobstore.
func (a *AzureBlobstore) Has(ctx context.Context, hash string) (bool, error) {
	blobClient := a.client.ServiceClient().NewContainerClient(a.container).NewBlobClient(a.blobName(hash))
	_, err := blobClient.GetProperties(ctx, nil)
	if err == nil {
		return true, nil
	}
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("azblob properties %s: %w", hash, err)
}
