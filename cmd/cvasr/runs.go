package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jye-lim/wav2vec2-asr/internal/ledger"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect transcription run history",
	}
	runsCmd.AddCommand(newRunsListCommand(ctx))
	runsCmd.AddCommand(newRunsShowCommand(ctx))
	return runsCmd
}

func newRunsListCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(ctx, func(store *ledger.Store) error {
				runs, err := store.ListRuns(cmd.Context(), limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs recorded")
					return nil
				}
				history := newGrid(textCol("ID"), textCol("Status"), textCol("Started"), numCol("Elapsed"),
					numCol("Rows"), numCol("OK"), numCol("Skipped"), numCol("Failed"))
				for _, run := range runs {
					history.add(
						shortID(run.ID),
						string(run.Status),
						relativeTime(run.StartedAt),
						run.Elapsed().Round(time.Second).String(),
						run.Total,
						run.Succeeded,
						run.Skipped,
						run.Failed,
					)
				}
				fmt.Fprintln(out, history)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show")
	return cmd
}

func newRunsShowCommand(ctx *commandContext) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a run and its row outcomes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(ctx, func(store *ledger.Store) error {
				return showRun(cmd.Context(), cmd.OutOrStdout(), store, args[0], all)
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Include successful rows")
	return cmd
}

func showRun(ctx context.Context, out io.Writer, store *ledger.Store, id string, all bool) error {
	run, err := store.GetRun(ctx, id)
	if err != nil {
		if errors.Is(err, ledger.ErrRunNotFound) {
			return fmt.Errorf("run %q not found", id)
		}
		return err
	}
	outcomes, err := store.Outcomes(ctx, run.ID)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Run:         %s\n", run.ID)
	fmt.Fprintf(out, "Status:      %s\n", run.Status)
	fmt.Fprintf(out, "Manifest:    %s\n", run.ManifestPath)
	fmt.Fprintf(out, "Output:      %s\n", run.OutputPath)
	fmt.Fprintf(out, "Audio dir:   %s\n", orDash(run.AudioDir))
	fmt.Fprintf(out, "Gateway:     %s\n", orDash(run.InferURL))
	fmt.Fprintf(out, "Concurrency: %d\n", run.Concurrency)
	fmt.Fprintf(out, "Started:     %s (%s)\n", run.StartedAt.Local().Format(time.DateTime), relativeTime(run.StartedAt))
	fmt.Fprintf(out, "Elapsed:     %s\n", run.Elapsed().Round(time.Millisecond))
	fmt.Fprintf(out, "Rows:        %d total, %d transcribed, %d skipped, %d failed\n", run.Total, run.Succeeded, run.Skipped, run.Failed)
	if msg := strings.TrimSpace(run.ErrorMessage); msg != "" {
		fmt.Fprintf(out, "Error:       %s\n", msg)
	}

	rows := newGrid(numCol("Row"), textCol("File"), textCol("Status"), numCol("Duration"), textCol("Deleted"), textCol("Detail"))
	for _, o := range outcomes {
		if !all && o.Status == "success" {
			continue
		}
		detail := o.Reason
		if o.Status == "success" {
			detail = o.Transcript
		}
		rows.add(o.Row+1, orDash(o.Filename), o.Status, orDash(o.Duration), yesNo(o.AudioDeleted), orDash(truncate(detail, 60)))
	}
	if !rows.empty() {
		fmt.Fprintln(out, rows)
	}
	return nil
}

func withLedger(ctx *commandContext, fn func(*ledger.Store) error) error {
	store, err := ctx.openLedger()
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("run ledger is disabled (set ledger.enabled = true)")
	}
	defer store.Close()
	return fn(store)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
