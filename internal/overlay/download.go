package overlay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"overlayvideos/internal/mediaservices"
)

// DownloadResults copies every blob of assetName into destDir/assetName,
// following listing markers until the last segment. Downloads run
// concurrently; concurrency <= 0 leaves them unbounded. The first failure
// cancels the remaining downloads and is returned. Files that finished stay
// on disk; the failed blob's partial file is removed.
func DownloadResults(ctx context.Context, svc MediaService, blobs BlobStore, assetName, destDir string, ttl time.Duration, concurrency int, logger *slog.Logger) ([]string, error) {
	dir := filepath.Join(destDir, assetName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	containerURL, err := svc.ContainerURL(ctx, assetName, mediaservices.PermissionRead, time.Now().Add(ttl))
	if err != nil {
		return nil, fmt.Errorf("container url for %s: %w", assetName, err)
	}
	logger.Info("downloading output results", "asset", assetName, "dir", dir)

	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}

	var (
		mu    sync.Mutex
		files []string
		total uint64
	)
	marker := ""
	for {
		seg, err := blobs.ListSegment(gctx, containerURL, marker)
		if err != nil {
			if werr := g.Wait(); werr != nil {
				return sorted(files), werr
			}
			return sorted(files), fmt.Errorf("list %s: %w", assetName, err)
		}
		for _, name := range seg.Names {
			local, err := localPath(dir, name)
			if err != nil {
				_ = g.Wait()
				return sorted(files), err
			}
			g.Go(func() error {
				if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
					return err
				}
				n, err := blobs.Download(gctx, containerURL, name, local)
				if err != nil {
					_ = os.Remove(local)
					return fmt.Errorf("download %s: %w", name, err)
				}
				mu.Lock()
				files = append(files, local)
				total += uint64(n)
				mu.Unlock()
				return nil
			})
		}
		if seg.NextMarker == "" {
			break
		}
		marker = seg.NextMarker
	}

	if err := g.Wait(); err != nil {
		return sorted(files), err
	}
	logger.Info("download complete", "asset", assetName, "files", len(files), "size", humanize.Bytes(total))
	return sorted(files), nil
}

// localPath maps a blob name under dir, refusing names that escape it.
func localPath(dir, blobName string) (string, error) {
	p, err := ResolveUnder(dir, blobName)
	if err != nil {
		return "", fmt.Errorf("blob name %q escapes output directory", blobName)
	}
	return p, nil
}

// ErrOutsideDir is returned by ResolveUnder for names that leave the base
// directory.
var ErrOutsideDir = errors.New("path escapes base directory")

// ResolveUnder joins a slash-separated name onto dir. A leading slash is
// treated as relative to dir. Names that resolve to dir itself or outside it
// are rejected.
func ResolveUnder(dir, name string) (string, error) {
	p := filepath.Join(dir, filepath.FromSlash(name))
	rel, err := filepath.Rel(dir, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrOutsideDir, name)
	}
	return p, nil
}

func sorted(files []string) []string {
	out := append([]string(nil), files...)
	sort.Strings(out)
	return out
}
