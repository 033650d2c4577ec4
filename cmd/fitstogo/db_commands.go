package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fitstogo/internal/daemonrun"
)

func newDBCommand(ctx *commandContext) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Database maintenance",
	}
	dbCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(app *daemonrun.App) error {
				applied, err := app.Store.Migrate(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, name := range applied {
					fmt.Fprintf(out, "Applied %s\n", name)
				}
				all, err := app.Store.AppliedMigrations(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Database %s is up to date (%d migrations)\n", app.Store.Path(), len(all))
				return nil
			})
		},
	})
	dbCmd.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Insert sample categories and products",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(app *daemonrun.App) error {
				result, err := app.Store.Seed(cmd.Context())
				if err != nil {
					return err
				}
				app.Catalog.Invalidate(cmd.Context())
				fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d categories and %d products\n", result.Categories, result.Products)
				return nil
			})
		},
	})
	return dbCmd
}
