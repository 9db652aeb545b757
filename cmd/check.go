package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/pagewatch/internal/diff"
	"github.com/sells-group/pagewatch/internal/extract"
)

var checkCmd = &cobra.Command{
	Use:   "check <site>",
	Short: "Preview what a run would see for one site",
	Long:  "Fetches and extracts a single site, then diffs against the stored snapshot without writing anything. Useful when tuning a selector.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		site, ok := cfg.SiteByName(args[0])
		if !ok {
			return eris.Errorf("unknown site %q", args[0])
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Fetcher.Fetch(ctx, site, env.Identities.Last(site.Name))
		if err != nil {
			return err
		}

		text, err := extract.Extract(res.Body, site.Selector, site.Name)
		if err != nil {
			return err
		}

		prev, err := env.Snapshots.Get(site.Name)
		if err != nil {
			return err
		}

		if prev == nil {
			fmt.Printf("No snapshot for %s yet; a run would establish this baseline:\n\n%s\n", site.Name, text)
			return nil
		}

		d := diff.Diff(site.Name, prev.Text, text)
		if !d.Significant {
			fmt.Printf("No meaningful change for %s (snapshot from %s).\n",
				site.Name, prev.CapturedAt.Format("2006-01-02 15:04"))
			return nil
		}

		fmt.Printf("%s changed: +%d/-%d sentence(s)\n\n", site.Name, d.Added, d.Removed)
		fmt.Println(diff.Format(d))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
