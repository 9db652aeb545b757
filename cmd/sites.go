package main

import (
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/sells-group/pagewatch/internal/config"
)

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "List the configured sites",
	RunE: func(cmd *cobra.Command, _ []string) error {
		formatSites(os.Stdout, cfg.Sites)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sitesCmd)
}

func formatSites(out io.Writer, sites []config.Site) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"Name", "URL", "Selector", "Render"})

	for _, s := range sites {
		t.AppendRow(table.Row{s.Name, s.URL, s.Selector, s.Render})
	}

	t.SetStyle(table.StyleRounded)
	t.Render()
}
