package overlay

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"overlayvideos/internal/mediakind"
	"overlayvideos/internal/mediaservices"
)

// CreateInputAsset creates assetName and uploads localPath into its
// container under the file's base name. The file is checked before any
// remote resource is created.
func CreateInputAsset(ctx context.Context, svc MediaService, blobs BlobStore, assetName, localPath string, ttl time.Duration, logger *slog.Logger) error {
	info, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("input file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("input file %s is a directory", localPath)
	}

	logger.Info("creating input asset", "asset", assetName)
	if err := svc.CreateAsset(ctx, assetName); err != nil {
		return fmt.Errorf("create asset %s: %w", assetName, err)
	}

	containerURL, err := svc.ContainerURL(ctx, assetName, mediaservices.PermissionReadWrite, time.Now().Add(ttl))
	if err != nil {
		return fmt.Errorf("container url for %s: %w", assetName, err)
	}

	blobName := filepath.Base(localPath)
	contentType := mediakind.ContentType(blobName)
	logger.Info("uploading file", "asset", assetName, "file", blobName, "kind", mediakind.Detect(blobName), "content_type", contentType, "size", humanize.Bytes(uint64(info.Size())))
	n, err := blobs.Upload(ctx, containerURL, blobName, localPath, contentType)
	if err != nil {
		return fmt.Errorf("upload %s to %s: %w", blobName, assetName, err)
	}
	logger.Debug("upload complete", "asset", assetName, "bytes", n)
	return nil
}

// CreateOutputAsset creates the empty asset a job writes into.
func CreateOutputAsset(ctx context.Context, svc MediaService, assetName string, logger *slog.Logger) error {
	logger.Info("creating output asset", "asset", assetName)
	if err := svc.CreateAsset(ctx, assetName); err != nil {
		return fmt.Errorf("create asset %s: %w", assetName, err)
	}
	return nil
}
