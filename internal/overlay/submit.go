package overlay

import (
	"context"
	"fmt"
	"log/slog"

	"overlayvideos/internal/jobs"
)

// DefaultCorrelationData is attached to jobs when the caller supplies none.
// The service echoes it back untouched.
func DefaultCorrelationData() map[string]string {
	return map[string]string{
		"customData1": "some custom data to pass through the job",
		"custom ID":   "some GUID here",
	}
}

// SubmitJob creates jobName under transform with the inputs in order and a
// single output asset. Job names must be unique per submission.
func SubmitJob(ctx context.Context, svc MediaService, transform, jobName string, inputs []jobs.Input, outputAsset string, correlation map[string]string, logger *slog.Logger) (jobs.Job, error) {
	logger.Info("submitting job", "job", jobName, "transform", transform, "inputs", len(inputs), "output", outputAsset)
	job, err := svc.CreateJob(ctx, transform, jobName, inputs, outputAsset, correlation)
	if err != nil {
		return jobs.Job{}, fmt.Errorf("create job %s: %w", jobName, err)
	}
	return job, nil
}
