package overlay

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"overlayvideos/internal/config"
	"overlayvideos/internal/jobs"
	"overlayvideos/internal/storage"
	"overlayvideos/internal/store"
)

// Options are the fixed parameters of a run.
type Options struct {
	TransformName       string
	OverlayLabel        string
	UploadSASTTL        time.Duration
	DownloadSASTTL      time.Duration
	DownloadConcurrency int
	Wait                WaitOptions
}

func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		TransformName:       cfg.TransformName,
		OverlayLabel:        cfg.OverlayLabel,
		UploadSASTTL:        cfg.UploadSASTTL(),
		DownloadSASTTL:      cfg.DownloadSASTTL(),
		DownloadConcurrency: cfg.DownloadConcurrency,
		Wait: WaitOptions{
			Interval:    cfg.PollInterval(),
			MaxInterval: cfg.PollMaxInterval(),
			Multiplier:  1.5,
			Timeout:     cfg.PollTimeout(),
		},
	}
}

// Request names the local files of one run.
type Request struct {
	InputFile       string
	OverlayFile     string
	OutputDir       string
	CorrelationData map[string]string
}

func RequestFromConfig(cfg config.Config) Request {
	return Request{
		InputFile:       cfg.InputFile,
		OverlayFile:     cfg.OverlayFile,
		OutputDir:       cfg.OutputDir,
		CorrelationData: DefaultCorrelationData(),
	}
}

// Result describes how a run ended. FailureMessage and FailureDetail are set
// only when the job finished in the Error state.
type Result struct {
	RunID          string
	Names          Names
	Job            jobs.Job
	Elapsed        time.Duration
	Downloaded     []string
	Published      []storage.Published
	FailureMessage string
	FailureDetail  string
}

// Runner executes the overlay sequence. Ledger and Publisher are optional.
type Runner struct {
	svc       MediaService
	blobs     BlobStore
	ledger    Ledger
	publisher Publisher
	opts      Options
	logger    *slog.Logger
	newNames  func() Names
}

func NewRunner(svc MediaService, blobs BlobStore, opts Options, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{svc: svc, blobs: blobs, opts: opts, logger: logger, newNames: NewNames}
}

func (r *Runner) WithLedger(l Ledger) *Runner {
	r.ledger = l
	return r
}

func (r *Runner) WithPublisher(p Publisher) *Runner {
	r.publisher = p
	return r
}

// WithProgress registers fn to receive each non-terminal job observation
// while Run waits.
func (r *Runner) WithProgress(fn func(jobs.Job)) *Runner {
	r.opts.Wait.Observe = fn
	return r
}

// Run provisions, uploads, submits, waits and downloads. A job that ends in
// Error or Canceled is not an error: inspect Result.Job.State.
func (r *Runner) Run(ctx context.Context, req Request) (Result, error) {
	var res Result

	if _, err := EnsureTransform(ctx, r.svc, r.opts.TransformName, r.opts.OverlayLabel, r.logger); err != nil {
		return res, err
	}

	names := r.newNames()
	res.Names = names

	if err := CreateInputAsset(ctx, r.svc, r.blobs, names.Input, req.InputFile, r.opts.UploadSASTTL, r.logger); err != nil {
		return res, err
	}
	if err := CreateInputAsset(ctx, r.svc, r.blobs, names.Logo, req.OverlayFile, r.opts.UploadSASTTL, r.logger); err != nil {
		return res, err
	}
	if err := CreateOutputAsset(ctx, r.svc, names.Output, r.logger); err != nil {
		return res, err
	}

	inputs := []jobs.Input{
		{AssetName: names.Input},
		{AssetName: names.Logo, Label: r.opts.OverlayLabel},
	}
	job, err := SubmitJob(ctx, r.svc, r.opts.TransformName, names.Job, inputs, names.Output, req.CorrelationData, r.logger)
	if err != nil {
		return res, err
	}
	res.Job = job
	res.RunID = r.recordRun(ctx, names, job.State)

	started := time.Now()
	job, err = WaitForJob(ctx, r.svc, r.opts.TransformName, names.Job, r.opts.Wait, r.logger)
	res.Elapsed = time.Since(started)
	if err != nil {
		r.finishRun(ctx, res.RunID, job.State, err.Error())
		return res, err
	}
	res.Job = job
	r.logger.Info("job reached terminal state", "job", names.Job, "state", job.State.String(), "elapsed", res.Elapsed.Round(time.Second))

	switch job.State {
	case jobs.StateFinished:
		res.Downloaded, err = DownloadResults(ctx, r.svc, r.blobs, names.Output, req.OutputDir, r.opts.DownloadSASTTL, r.opts.DownloadConcurrency, r.logger)
		if err != nil {
			r.finishRun(ctx, res.RunID, job.State, err.Error())
			return res, err
		}
		if r.publisher != nil {
			res.Published, err = r.publisher.PublishDir(ctx, filepath.Join(req.OutputDir, names.Output), names.Output)
			if err != nil {
				err = fmt.Errorf("publish results: %w", err)
				r.finishRun(ctx, res.RunID, job.State, err.Error())
				return res, err
			}
		}
		r.finishRun(ctx, res.RunID, job.State, "")
	case jobs.StateError:
		res.FailureMessage, res.FailureDetail = job.FailureReport()
		r.finishRun(ctx, res.RunID, job.State, res.FailureMessage)
	default:
		r.finishRun(ctx, res.RunID, job.State, "")
	}
	return res, nil
}

func (r *Runner) recordRun(ctx context.Context, names Names, state jobs.State) string {
	if r.ledger == nil {
		return ""
	}
	run := store.Run{
		ID:            uuid.NewString(),
		JobName:       names.Job,
		TransformName: r.opts.TransformName,
		InputAsset:    names.Input,
		LogoAsset:     names.Logo,
		OutputAsset:   names.Output,
		State:         state.String(),
	}
	if err := r.ledger.CreateRun(ctx, run); err != nil {
		r.logger.Warn("record run failed", "job", names.Job, "error", err)
		return ""
	}
	return run.ID
}

func (r *Runner) finishRun(ctx context.Context, id string, state jobs.State, errMsg string) {
	if r.ledger == nil || id == "" {
		return
	}
	var msg *string
	if errMsg != "" {
		msg = &errMsg
	}
	if err := r.ledger.UpdateRunState(context.WithoutCancel(ctx), id, state.String(), msg); err != nil {
		r.logger.Warn("update run failed", "run", id, "error", err)
	}
}
