package main

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"fitstogo/internal/daemonrun"
)

func newClicksCommand(ctx *commandContext) *cobra.Command {
	clicksCmd := &cobra.Command{
		Use:   "clicks",
		Short: "Affiliate click tracking",
	}

	var days int
	var asJSON bool
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Count affiliate redirects per platform",
		RunE: func(cmd *cobra.Command, args []string) error {
			if days < 1 {
				return fmt.Errorf("--days must be at least 1")
			}
			return ctx.withApp(cmd, func(app *daemonrun.App) error {
				since := time.Now().AddDate(0, 0, -days)
				counts, err := app.Clicks.Stats(cmd.Context(), since)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, counts)
				}
				total := 0
				rows := make([][]string, 0, len(counts)+1)
				for _, platform := range slices.Sorted(maps.Keys(counts)) {
					rows = append(rows, []string{string(platform), fmt.Sprint(counts[platform])})
					total += counts[platform]
				}
				rows = append(rows, []string{"TOTAL", fmt.Sprint(total)})
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Clicks since %s\n", since.Format(time.DateOnly))
				fmt.Fprintln(out, renderTable([]string{"Platform", "Clicks"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
	stats.Flags().IntVar(&days, "days", 30, "Look-back window in days")
	stats.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	clicksCmd.AddCommand(stats)
	return clicksCmd
}
