package overlay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"overlayvideos/internal/jobs"
	"overlayvideos/internal/mediaservices"
)

// EnsureTransform returns the transform called name, creating it with the
// overlay preset when the service does not know it. An existing transform is
// assumed to carry the same recipe and is never modified.
func EnsureTransform(ctx context.Context, svc MediaService, name, overlayLabel string, logger *slog.Logger) (jobs.Transform, error) {
	t, err := svc.GetTransform(ctx, name)
	if err == nil {
		logger.Debug("transform exists", "transform", name)
		return t, nil
	}
	if !errors.Is(err, mediaservices.ErrNotFound) {
		return jobs.Transform{}, fmt.Errorf("get transform %s: %w", name, err)
	}

	logger.Info("creating transform", "transform", name, "overlay_label", overlayLabel)
	t, err = svc.CreateTransform(ctx, name, overlayLabel)
	if err != nil {
		return jobs.Transform{}, fmt.Errorf("create transform %s: %w", name, err)
	}
	return t, nil
}
