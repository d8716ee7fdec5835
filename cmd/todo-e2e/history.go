package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kuitang/todolist-e2e/internal/harness"
	"github.com/kuitang/todolist-e2e/internal/history"
	"github.com/kuitang/todolist-e2e/internal/report"
)

func newHistoryCommand() *cobra.Command {
	var (
		path  string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent runs and flaky cases",
		Long: `List the most recent recorded runs and the cases whose outcome changed
within that window. HISTORY_KEY unlocks an encrypted ledger.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				path = strings.TrimSpace(os.Getenv("HISTORY_PATH"))
			}
			return showHistory(cmd.Context(), cmd.OutOrStdout(), path, strings.TrimSpace(os.Getenv("HISTORY_KEY")), limit)
		},
	}
	cmd.Flags().StringVar(&path, "history", "", "Run history database (overrides HISTORY_PATH)")
	cmd.Flags().IntVar(&limit, "limit", history.DefaultRecentLimit, "Number of runs to show")
	return cmd
}

func showHistory(ctx context.Context, out io.Writer, path, key string, limit int) error {
	store, err := history.Open(path, key)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.Recent(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "no runs recorded")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tRUN\tDRIVER\tRESULT\tDURATION")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.StartedAt.Format("2006-01-02 15:04:05"), r.RunID, r.Driver, r.Summary,
			report.FormatDuration(r.FinishedAt.Sub(r.StartedAt)))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	flakes, err := store.Flaky(ctx, limit)
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	if len(flakes) == 0 {
		fmt.Fprintf(out, "no flaky cases in the last %d runs\n", len(runs))
		return nil
	}
	fmt.Fprintf(out, "flaky cases in the last %d runs:\n", len(runs))
	tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CASE\tRUNS\tPASSED\tNOT PASSED\tFLIPS\tLAST")
	for _, f := range flakes {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%s\n", f.Case, f.Runs, f.Passed, f.NotPassed, f.Flips, f.LastOutcome)
	}
	return tw.Flush()
}

func newInstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install the Playwright driver and Chromium",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := harness.Install(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "playwright driver and chromium installed")
			return nil
		},
	}
}
