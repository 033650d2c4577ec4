package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fitstogo/internal/catalog"
	"fitstogo/internal/daemonrun"
)

func newProductsCommand(ctx *commandContext) *cobra.Command {
	productsCmd := &cobra.Command{
		Use:   "products",
		Short: "Browse the product catalog",
	}

	var filter catalog.Filter
	var asJSON bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List active products",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(app *daemonrun.App) error {
				page, err := app.Catalog.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, page)
				}
				rows := make([][]string, 0, len(page.Data))
				for _, p := range page.Data {
					category := ""
					if p.Category != nil {
						category = p.Category.Name
					}
					rows = append(rows, []string{
						p.ID,
						string(p.Platform),
						truncate(p.Title, 48),
						category,
						fmt.Sprintf("%.2f %s", p.Price, p.Currency),
					})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Platform", "Title", "Category", "Price"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
				))
				fmt.Fprintf(out, "Page %d of %d (%d products)\n", page.Page, page.TotalPages, page.Total)
				return nil
			})
		},
	}
	list.Flags().StringVar(&filter.Search, "search", "", "Match title or description")
	list.Flags().StringVar(&filter.Platform, "platform", "", "Only SHOPEE or LAZADA products")
	list.Flags().StringVar(&filter.Category, "category", "", "Category slug")
	list.Flags().IntVar(&filter.Limit, "limit", 20, "Products per page")
	list.Flags().IntVar(&filter.Page, "page", 1, "Page number")
	list.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	productsCmd.AddCommand(list)
	return productsCmd
}
