package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"overlayvideos/internal/app"
	"overlayvideos/internal/store"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs and the remote resources they created",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			st, err := app.OpenLedger(cmd.Context(), cfg)
			if errors.Is(err, store.ErrDisabled) {
				return errors.New("run ledger disabled: set database_url or DATABASE_URL")
			}
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			defer st.Close()

			runs, err := st.ListRuns(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}
			printRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show")
	return cmd
}

func printRuns(out io.Writer, runs []store.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded")
		return
	}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		errMsg := ""
		if r.Error.Valid {
			errMsg = truncate(r.Error.String, 60)
		}
		rows = append(rows, []string{
			r.JobName,
			r.State,
			r.InputAsset,
			r.LogoAsset,
			r.OutputAsset,
			r.CreatedAt.Local().Format(time.DateTime),
			errMsg,
		})
	}
	fmt.Fprintln(out, renderTable([]string{"Job", "State", "Input", "Logo", "Output", "Created", "Error"}, rows))
}

// truncate keeps the first max runes of s.
func truncate(s string, max int) string {
	runes := []rune(s)
	if max <= 0 || len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
