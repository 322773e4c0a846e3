// Package overlay sequences the calls that composite an overlay image onto a
// video with a remote encoding service: provision the transform, upload the
// inputs, submit the job, wait for it and fetch the results.
package overlay

import (
	"context"
	"time"

	"overlayvideos/internal/blobstore"
	"overlayvideos/internal/jobs"
	"overlayvideos/internal/mediaservices"
	"overlayvideos/internal/storage"
	"overlayvideos/internal/store"
)

// MediaService is the subset of the encoding service API used here.
type MediaService interface {
	GetTransform(ctx context.Context, name string) (jobs.Transform, error)
	CreateTransform(ctx context.Context, name, overlayLabel string) (jobs.Transform, error)
	CreateAsset(ctx context.Context, name string) error
	ContainerURL(ctx context.Context, asset string, perm mediaservices.Permission, expiry time.Time) (string, error)
	CreateJob(ctx context.Context, transform, name string, inputs []jobs.Input, outputAsset string, correlation map[string]string) (jobs.Job, error)
	GetJob(ctx context.Context, transform, name string) (jobs.Job, error)
}

// BlobStore reads and writes blobs in a container reached by a signed URL.
type BlobStore interface {
	Upload(ctx context.Context, containerURL, blobName, localPath, contentType string) (int64, error)
	ListSegment(ctx context.Context, containerURL, marker string) (blobstore.Segment, error)
	Download(ctx context.Context, containerURL, blobName, localPath string) (int64, error)
}

// Ledger records the resources each run created.
type Ledger interface {
	CreateRun(ctx context.Context, run store.Run) error
	UpdateRunState(ctx context.Context, id, state string, errMsg *string) error
}

// Publisher copies a local directory somewhere shareable.
type Publisher interface {
	PublishDir(ctx context.Context, dir, prefix string) ([]storage.Published, error)
}

var (
	_ MediaService = (*mediaservices.Client)(nil)
	_ BlobStore    = (*blobstore.Store)(nil)
	_ Ledger       = (*store.Store)(nil)
	_ Publisher    = (*storage.S3Client)(nil)
)
