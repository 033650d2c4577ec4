package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"fitstogo/internal/config"
	"fitstogo/internal/daemonrun"
)

func newImportCommand(ctx *commandContext) *cobra.Command {
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import marketplace product feeds",
	}

	var asJSON bool
	shopee := &cobra.Command{
		Use:   "shopee <csv>",
		Short: "Replace the Shopee catalog from an affiliate product feed CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			feed, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open feed: %w", err)
			}
			defer feed.Close()

			return ctx.withApp(cmd, func(app *daemonrun.App) error {
				summary, err := app.Importer.ImportShopee(cmd.Context(), feed)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, summary)
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Processed", "Imported", "Sizes", "Variants", "Skipped"},
					[][]string{{
						fmt.Sprint(summary.Processed),
						fmt.Sprint(summary.Imported),
						fmt.Sprint(summary.Sizes),
						fmt.Sprint(summary.Variants),
						fmt.Sprint(summary.Skipped),
					}},
					[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight},
				))
				return nil
			})
		},
	}
	shopee.Flags().BoolVar(&asJSON, "json", false, "Output summary as JSON")
	importCmd.AddCommand(shopee)
	return importCmd
}
