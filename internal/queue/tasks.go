package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/hibiken/asynq"
)

const TaskOverlayRun = "overlay:run"

type RunPayload struct {
	InputFile       string            `json:"input_file"`
	OverlayFile     string            `json:"overlay_file"`
	OutputDir       string            `json:"output_dir"`
	CorrelationData map[string]string `json:"correlation_data,omitempty"`
}

func (p RunPayload) validate() error {
	if strings.TrimSpace(p.InputFile) == "" {
		return errors.New("input_file is required")
	}
	if strings.TrimSpace(p.OverlayFile) == "" {
		return errors.New("overlay_file is required")
	}
	if strings.TrimSpace(p.OutputDir) == "" {
		return errors.New("output_dir is required")
	}
	return nil
}

func NewRunTask(p RunPayload) (*asynq.Task, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOverlayRun, b), nil
}

func ParseRunPayload(t *asynq.Task) (RunPayload, error) {
	var p RunPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return RunPayload{}, err
	}
	return p, p.validate()
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// EnqueueRun queues one overlay run with retries disabled.
func EnqueueRun(ctx context.Context, e Enqueuer, p RunPayload, timeout time.Duration) (*asynq.TaskInfo, error) {
	task, err := NewRunTask(p)
	if err != nil {
		return nil, err
	}
	opts := []asynq.Option{asynq.MaxRetry(0)}
	if timeout > 0 {
		opts = append(opts, asynq.Timeout(timeout))
	}
	return e.EnqueueContext(ctx, task, opts...)
}
