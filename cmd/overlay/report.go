package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"overlayvideos/internal/config"
	"overlayvideos/internal/jobs"
	"overlayvideos/internal/mediaservices"
	"overlayvideos/internal/overlay"
)

const settingsTip = "TIP: Make sure that you have filled out the appsettings.toml file before running this sample."

// reportError prints a settings hint for credential problems, the error
// itself and then the service's error code and message when there is one.
func reportError(w io.Writer, err error) {
	var authErr *mediaservices.AuthError
	var missing *config.MissingSettingsError
	if errors.As(err, &authErr) || errors.As(err, &missing) {
		fmt.Fprintln(w, settingsTip)
	}
	fmt.Fprintln(w, err)

	var apiErr *mediaservices.APIError
	if errors.As(err, &apiErr) {
		fmt.Fprintf(w, "ERROR: API call failed with error code '%s' and message '%s'.\n", apiErr.Code, apiErr.Message)
	}
}

// printStatus writes one polling observation: the job state and then one
// line per output, with progress while it is processing.
func printStatus(w io.Writer, job jobs.Job) {
	fmt.Fprintf(w, "Job is %s.\n", job.State)
	for i, out := range job.Outputs {
		fmt.Fprintf(w, "\tJobOutput[%d] is %s.\n", i, out.State)
		if out.State == jobs.StateProcessing {
			fmt.Fprintf(w, "\tProgress: %d%%\n", out.Progress)
		}
	}
}

func printResult(w io.Writer, res overlay.Result) {
	switch res.Job.State {
	case jobs.StateFinished:
		fmt.Fprintln(w, "Job finished.")
		fmt.Fprintf(w, "Downloaded %d file(s); the job ran for %s.\n", len(res.Downloaded), res.Elapsed.Round(time.Second))
		for _, f := range res.Downloaded {
			fmt.Fprintf(w, "  %s\n", f)
		}
		for _, p := range res.Published {
			fmt.Fprintf(w, "Published %s: %s\n", p.Key, p.URL)
		}
	case jobs.StateError:
		fmt.Fprintf(w, "ERROR: Job finished with error message: %s\n", res.FailureMessage)
		fmt.Fprintf(w, "ERROR:                   error details: %s\n", res.FailureDetail)
	default:
		fmt.Fprintf(w, "Job ended in state %s after %s.\n", res.Job.State, res.Elapsed.Round(time.Second))
	}
}
