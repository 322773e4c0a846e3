package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"overlayvideos/internal/app"
	"overlayvideos/internal/config"
	"overlayvideos/internal/jobs"
	"overlayvideos/internal/overlay"
)

type runFlags struct {
	input    string
	overlay  string
	output   string
	noPrompt bool
}

func newRootCommand() *cobra.Command {
	var configFlag string
	var flags runFlags

	ctx := newCommandContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:           "overlay",
		Short:         "Composite an overlay image onto a video with Azure Media Services",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := runOnce(cmd.Context(), ctx, flags, cmd.OutOrStdout()); err != nil && !errors.Is(err, context.Canceled) {
				reportError(cmd.ErrOrStderr(), err)
			}
			if shouldPrompt(cmd.Context(), flags.noPrompt, isTerminal(cmd.InOrStdin())) {
				fmt.Fprintln(cmd.OutOrStdout(), "Press Enter to continue.")
				_, _ = bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Settings file path (default appsettings.toml)")
	rootCmd.Flags().StringVar(&flags.input, "input", "", "Video file to encode")
	rootCmd.Flags().StringVar(&flags.overlay, "overlay", "", "Image to overlay onto the video")
	rootCmd.Flags().StringVar(&flags.output, "output", "", "Directory that receives the encoded results")
	rootCmd.Flags().BoolVar(&flags.noPrompt, "no-prompt", false, "Exit without waiting for Enter")

	rootCmd.AddCommand(newRunsCommand(ctx))
	rootCmd.AddCommand(newEnqueueCommand(ctx))

	return rootCmd
}

func runOnce(ctx context.Context, cc *commandContext, flags runFlags, out io.Writer) error {
	cfg, logger, err := cc.ensureConfig()
	if err != nil {
		return err
	}
	flags.apply(&cfg)

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	a.Runner.WithProgress(func(job jobs.Job) { printStatus(out, job) })
	res, err := a.Runner.Run(ctx, overlay.RequestFromConfig(cfg))
	if err != nil {
		return err
	}
	printResult(out, res)
	return nil
}

func (f runFlags) apply(cfg *config.Config) {
	if f.input != "" {
		cfg.InputFile = f.input
	}
	if f.overlay != "" {
		cfg.OverlayFile = f.overlay
	}
	if f.output != "" {
		cfg.OutputDir = f.output
	}
}

// shouldPrompt reports whether to wait for Enter before exiting. An
// interrupted run exits straight away.
func shouldPrompt(ctx context.Context, noPrompt, terminal bool) bool {
	if noPrompt || !terminal {
		return false
	}
	return ctx.Err() == nil
}

func isTerminal(in io.Reader) bool {
	f, ok := in.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
