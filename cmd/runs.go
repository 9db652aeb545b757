package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/pagewatch/internal/journal"
)

var (
	runsLimit    int
	runsShowJSON bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent runs from the journal",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		jrnl, err := journal.Open(ctx, cfg.Journal, cfg.DataDir)
		if err != nil {
			return err
		}
		defer jrnl.Close() //nolint:errcheck

		runs, err := jrnl.ListRuns(ctx, runsLimit)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs recorded.")
			return nil
		}

		formatRuns(os.Stdout, runs)
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show per-site results of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		jrnl, err := journal.Open(ctx, cfg.Journal, cfg.DataDir)
		if err != nil {
			return err
		}
		defer jrnl.Close() //nolint:errcheck

		results, err := jrnl.ListResults(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		if runsShowJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		}

		if len(results) == 0 {
			fmt.Fprintln(os.Stderr, "No results for that run.")
			return nil
		}

		formatResults(os.Stdout, results)
		return nil
	},
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "max number of runs to display")
	runsShowCmd.Flags().BoolVar(&runsShowJSON, "json", false, "emit results as JSON")
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

func formatRuns(out io.Writer, runs []journal.Run) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"ID", "Started", "Duration", "Sites", "Changed", "Failed"})

	for _, r := range runs {
		dur := "-"
		if r.FinishedAt != nil {
			dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		t.AppendRow(table.Row{
			truncateID(r.ID),
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
			r.Sites,
			r.Changed,
			r.Failed,
		})
	}

	t.SetStyle(table.StyleRounded)
	t.Render()
}

func formatResults(out io.Writer, results []journal.SiteResult) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"Site", "Status", "Stage", "Change", "Duration", "Error"})

	for _, r := range results {
		t.AppendRow(table.Row{
			r.SiteID,
			string(r.Status),
			string(r.Stage),
			fmt.Sprintf("+%d/-%d", r.Added, r.Removed),
			(time.Duration(r.DurationMS) * time.Millisecond).String(),
			truncateErr(r.Error),
		})
	}

	t.SetStyle(table.StyleRounded)
	t.Render()
}

// truncateID returns the first 8 characters of a run ID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
