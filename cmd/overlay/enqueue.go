package main

import (
	"fmt"
	"path/filepath"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"overlayvideos/internal/overlay"
	"overlayvideos/internal/queue"
)

func newEnqueueCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Queue a run for the worker instead of running it here",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			flags.apply(&cfg)
			req := overlay.RequestFromConfig(cfg)
			// the worker may run from another directory
			for _, p := range []*string{&req.InputFile, &req.OverlayFile, &req.OutputDir} {
				abs, err := filepath.Abs(*p)
				if err != nil {
					return err
				}
				*p = abs
			}

			client := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
			defer client.Close()

			info, err := queue.EnqueueRun(cmd.Context(), client, queue.RunPayload{
				InputFile:       req.InputFile,
				OverlayFile:     req.OverlayFile,
				OutputDir:       req.OutputDir,
				CorrelationData: req.CorrelationData,
			}, cfg.JobTimeout())
			if err != nil {
				return fmt.Errorf("enqueue run: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Enqueued task %s on queue %s\n", info.ID, info.Queue)
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.input, "input", "", "Video file to encode")
	cmd.Flags().StringVar(&flags.overlay, "overlay", "", "Image to overlay onto the video")
	cmd.Flags().StringVar(&flags.output, "output", "", "Directory that receives the encoded results")
	return cmd
}
