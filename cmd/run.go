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
	"go.uber.org/zap"

	"github.com/sells-group/pagewatch/internal/config"
	"github.com/sells-group/pagewatch/internal/model"
	"github.com/sells-group/pagewatch/internal/pipeline"
)

var (
	runDryRun      bool
	runJSON        bool
	runConcurrency int
)

var runCmd = &cobra.Command{
	Use:   "run [site...]",
	Short: "Run change detection for all sites, or a named subset",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if runDryRun {
			cfg.Notify.DryRun = true
		}
		if runConcurrency > 0 {
			cfg.Pipeline.Concurrency = runConcurrency
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		sites, err := resolveSites(cfg.Sites, args)
		if err != nil {
			return err
		}

		result := env.Pipeline.Run(ctx, sites)

		if runJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}

		formatOutcomes(os.Stdout, result)
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "print notifications instead of delivering them")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "emit outcomes as JSON")
	runCmd.Flags().IntVar(&runConcurrency, "concurrency", 0, "concurrent sites (default from config)")
	rootCmd.AddCommand(runCmd)
}

// resolveSites maps site names to their configuration, preserving the
// argument order. No names selects every site.
func resolveSites(all []config.Site, names []string) ([]config.Site, error) {
	if len(names) == 0 {
		return all, nil
	}

	byName := make(map[string]config.Site, len(all))
	for _, s := range all {
		byName[s.Name] = s
	}

	sites := make([]config.Site, 0, len(names))
	for _, name := range names {
		s, ok := byName[name]
		if !ok {
			return nil, eris.Errorf("unknown site %q", name)
		}
		sites = append(sites, s)
	}
	return sites, nil
}

// formatOutcomes writes a per-site result table followed by a count
// summary.
func formatOutcomes(out io.Writer, result *pipeline.Result) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"Site", "Status", "Stage", "Change", "Duration", "Error"})

	var changed, failed int
	for _, o := range result.Outcomes {
		switch o.Status {
		case model.StatusChanged:
			changed++
		case model.StatusFailed:
			failed++
		}
		t.AppendRow(table.Row{
			o.SiteID,
			string(o.Status),
			string(o.Stage),
			formatChange(o.Diff),
			o.Duration.Round(time.Millisecond).String(),
			truncateErr(o.Err),
		})
	}

	t.SetStyle(table.StyleRounded)
	t.Render()

	zap.L().Info("run complete",
		zap.String("run_id", result.RunID),
		zap.Int("sites", len(result.Outcomes)),
		zap.Int("changed", changed),
		zap.Int("failed", failed),
	)
}

// formatChange renders added/removed sentence counts, or "-" when the
// site produced no diff.
func formatChange(d *model.DiffResult) string {
	if d == nil {
		return "-"
	}
	return fmt.Sprintf("+%d/-%d", d.Added, d.Removed)
}

// truncateErr keeps table rows readable when an error chain is long.
func truncateErr(msg string) string {
	if len(msg) > 60 {
		return msg[:57] + "..."
	}
	return msg
}
