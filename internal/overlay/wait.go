package overlay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"overlayvideos/internal/jobs"
)

// ErrWaitTimeout is returned when a job is still running after
// WaitOptions.Timeout.
var ErrWaitTimeout = errors.New("timed out waiting for job")

// WaitOptions controls the polling schedule. The delay starts at Interval and
// is multiplied by Multiplier after every non-terminal observation, capped at
// MaxInterval. A zero Timeout waits until ctx is done. Observe, when set,
// receives every non-terminal observation.
type WaitOptions struct {
	Interval    time.Duration
	MaxInterval time.Duration
	Multiplier  float64
	Timeout     time.Duration
	Observe     func(jobs.Job)
}

func (o WaitOptions) normalized() WaitOptions {
	if o.Interval <= 0 {
		o.Interval = 10 * time.Second
	}
	if o.MaxInterval < o.Interval {
		o.MaxInterval = o.Interval
	}
	if o.Multiplier < 1 {
		o.Multiplier = 1
	}
	return o
}

func (o WaitOptions) next(cur time.Duration) time.Duration {
	n := time.Duration(float64(cur) * o.Multiplier)
	if n > o.MaxInterval || n <= 0 {
		return o.MaxInterval
	}
	return n
}

// WaitForJob polls the job until it first reports a terminal state and
// returns that observation.
func WaitForJob(ctx context.Context, svc MediaService, transform, jobName string, opts WaitOptions, logger *slog.Logger) (jobs.Job, error) {
	opts = opts.normalized()

	waitCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	delay := opts.Interval
	var last jobs.Job
	for {
		job, err := svc.GetJob(waitCtx, transform, jobName)
		if err != nil {
			if waitCtx.Err() != nil {
				return last, waitError(ctx, waitCtx, opts, jobName, last)
			}
			return last, fmt.Errorf("get job %s: %w", jobName, err)
		}
		last = job
		if job.State.IsTerminal() {
			return job, nil
		}
		logProgress(logger, job)
		if opts.Observe != nil {
			opts.Observe(job)
		}

		timer := time.NewTimer(delay)
		select {
		case <-waitCtx.Done():
			timer.Stop()
			return last, waitError(ctx, waitCtx, opts, jobName, last)
		case <-timer.C:
		}
		delay = opts.next(delay)
	}
}

func waitError(parent, waitCtx context.Context, opts WaitOptions, jobName string, last jobs.Job) error {
	if parent.Err() == nil && errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w %s after %s (last state %s)", ErrWaitTimeout, jobName, opts.Timeout, last.State)
	}
	return fmt.Errorf("waiting for job %s: %w", jobName, context.Cause(parent))
}

func logProgress(logger *slog.Logger, job jobs.Job) {
	logger.Info("job status", "job", job.Name, "state", job.State.String())
	for i, out := range job.Outputs {
		attrs := []any{"job", job.Name, "output", i, "state", out.State.String()}
		if out.State == jobs.StateProcessing {
			attrs = append(attrs, "progress", out.Progress)
		}
		logger.Info("job output status", attrs...)
	}
}
