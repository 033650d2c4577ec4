package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"fitstogo/internal/affiliate"
	"fitstogo/internal/daemonrun"
	"fitstogo/internal/store"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "sync [platform]",
		Short: "Sync products from the affiliate APIs",
		Long:  "Sync every configured marketplace, or only SHOPEE or LAZADA when a platform is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(app *daemonrun.App) error {
				var (
					results []affiliate.SyncResult
					syncErr error
				)
				if len(args) == 1 {
					platform, ok := store.ParsePlatform(args[0])
					if !ok {
						return fmt.Errorf("unknown platform %q (expected shopee or lazada)", args[0])
					}
					result, err := app.Syncer.SyncPlatform(cmd.Context(), platform)
					results, syncErr = []affiliate.SyncResult{result}, err
					app.Catalog.Invalidate(cmd.Context())
				} else {
					results, syncErr = app.Syncer.SyncAll(cmd.Context())
				}

				if asJSON {
					if err := writeJSON(cmd, results); err != nil {
						return err
					}
				} else {
					rows := make([][]string, 0, len(results))
					for _, r := range results {
						status := "ok"
						if !r.Success {
							status = "failed"
						}
						rows = append(rows, []string{string(r.Platform), status, fmt.Sprint(r.ProductsCount), strings.Join(r.Errors, "; ")})
					}
					fmt.Fprintln(cmd.OutOrStdout(), renderTable(
						[]string{"Platform", "Status", "Products", "Errors"},
						rows,
						[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
					))
				}
				if syncErr != nil {
					return syncErr
				}
				for _, r := range results {
					if !r.Success {
						return errors.New("one or more platforms failed to sync")
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output results as JSON")
	return cmd
}
