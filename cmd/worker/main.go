package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/gofrs/flock"
	"github.com/hibiken/asynq"

	"overlayvideos/internal/app"
	"overlayvideos/internal/config"
	"overlayvideos/internal/jobs"
	"overlayvideos/internal/logging"
	"overlayvideos/internal/overlay"
	"overlayvideos/internal/queue"
)

type runner interface {
	Run(ctx context.Context, req overlay.Request) (overlay.Result, error)
}

func main() {
	cfg, err := config.Load(os.Getenv("OVERLAY_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := run(cfg, logger); err != nil {
		logger.Error("worker stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	lock := flock.New(cfg.WorkerLockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another worker holds %s", cfg.WorkerLockPath)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("release lock failed", "error", err)
		}
	}()

	a, err := app.Build(context.Background(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	concurrency := cfg.WorkerConcurrency
	if concurrency < 1 {
		concurrency = 1
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB},
		asynq.Config{Concurrency: concurrency, Logger: asynqLogger{logger}},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskOverlayRun, newRunHandler(a.Runner, logger))

	logger.Info("worker started", "concurrency", concurrency, "lock", cfg.WorkerLockPath)
	return srv.Run(mux)
}

// newRunHandler runs one queued overlay. Every failure is returned wrapped in
// asynq.SkipRetry.
func newRunHandler(r runner, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		p, err := queue.ParseRunPayload(t)
		if err != nil {
			return skipRetry(err)
		}
		logger.Info("run start", "input", p.InputFile, "overlay", p.OverlayFile, "output", p.OutputDir)

		correlation := p.CorrelationData
		if len(correlation) == 0 {
			correlation = overlay.DefaultCorrelationData()
		}
		res, err := r.Run(ctx, overlay.Request{
			InputFile:       p.InputFile,
			OverlayFile:     p.OverlayFile,
			OutputDir:       p.OutputDir,
			CorrelationData: correlation,
		})
		if err != nil {
			logger.Error("run failed", "job", res.Names.Job, "error", err)
			return skipRetry(err)
		}

		switch res.Job.State {
		case jobs.StateFinished:
			logger.Info("run done", "job", res.Names.Job, "files", len(res.Downloaded), "published", len(res.Published))
			return nil
		case jobs.StateError:
			logger.Error("job failed", "job", res.Names.Job, "message", res.FailureMessage, "detail", res.FailureDetail)
			return skipRetry(fmt.Errorf("job %s: %s", res.Names.Job, res.FailureMessage))
		default:
			return skipRetry(fmt.Errorf("job %s ended in state %s", res.Names.Job, res.Job.State))
		}
	}
}

func skipRetry(err error) error {
	if err == nil || errors.Is(err, asynq.SkipRetry) {
		return err
	}
	return fmt.Errorf("%w: %s", asynq.SkipRetry, truncate(err.Error(), 800))
}

// truncate keeps the first max runes of s.
func truncate(s string, max int) string {
	runes := []rune(s)
	if max <= 0 || len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// asynqLogger routes the server's own messages through slog.
type asynqLogger struct {
	l *slog.Logger
}

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...interface{}) {
	a.l.Error(fmt.Sprint(args...))
	os.Exit(1)
}
