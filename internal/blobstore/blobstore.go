// Package blobstore moves files in and out of asset containers addressed by
// signed container URLs.
package blobstore

import (
	"context"
	"fmt"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
)

// Segment is one page of a container listing. NextMarker is empty on the
// last page.
type Segment struct {
	Names      []string
	NextMarker string
}

// Store needs no credentials of its own: the signed URL carries them.
type Store struct{}

func New() *Store {
	return &Store{}
}

func (s *Store) containerClient(containerURL string) (*container.Client, error) {
	c, err := container.NewClientWithNoCredential(containerURL, nil)
	if err != nil {
		return nil, fmt.Errorf("open container: %w", err)
	}
	return c, nil
}

// Upload writes the local file as a single block blob and returns its size.
func (s *Store) Upload(ctx context.Context, containerURL, blobName, localPath, contentType string) (int64, error) {
	c, err := s.containerClient(containerURL)
	if err != nil {
		return 0, err
	}
	f, err := os.Open(localPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}

	_, err = c.NewBlockBlobClient(blobName).UploadFile(ctx, f, &blockblob.UploadFileOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: to.Ptr(contentType)},
	})
	if err != nil {
		return 0, fmt.Errorf("upload %s: %w", blobName, err)
	}
	return info.Size(), nil
}

// ListSegment fetches the page of blob names that starts at marker.
func (s *Store) ListSegment(ctx context.Context, containerURL, marker string) (Segment, error) {
	c, err := s.containerClient(containerURL)
	if err != nil {
		return Segment{}, err
	}
	opts := &container.ListBlobsFlatOptions{}
	if marker != "" {
		opts.Marker = to.Ptr(marker)
	}
	pager := c.NewListBlobsFlatPager(opts)
	resp, err := pager.NextPage(ctx)
	if err != nil {
		return Segment{}, fmt.Errorf("list blobs: %w", err)
	}

	var seg Segment
	if resp.Segment != nil {
		for _, item := range resp.Segment.BlobItems {
			if item == nil || item.Name == nil {
				continue
			}
			seg.Names = append(seg.Names, *item.Name)
		}
	}
	if resp.NextMarker != nil {
		seg.NextMarker = *resp.NextMarker
	}
	return seg, nil
}

// Download copies a blob to localPath, truncating any existing file.
func (s *Store) Download(ctx context.Context, containerURL, blobName, localPath string) (int64, error) {
	c, err := s.containerClient(containerURL)
	if err != nil {
		return 0, err
	}
	f, err := os.Create(localPath)
	if err != nil {
		return 0, err
	}
	n, err := c.NewBlobClient(blobName).DownloadFile(ctx, f, nil)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return n, fmt.Errorf("download %s: %w", blobName, err)
	}
	return n, nil
}
