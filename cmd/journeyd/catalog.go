package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mind-engage/valuejourney/internal/catalog"
)

func newCatalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog [path]",
		Short: "Validate a level catalog and print its levels",
		Long: `Validate a level catalog and print its levels.

Without a path the embedded catalog is checked.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			cat, err := loadCatalog(path)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tQUESTIONS\tCEILING\tFOCUS")
			for _, l := range cat.Levels() {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%.0f\t%s\n", l.ID, l.DisplayName, cat.QuestionCount(l.ID), cat.Ceiling(l.ID), l.Focus)
			}
			return tw.Flush()
		},
	}
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default(), nil
	}
	cat, err := catalog.Load(path)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return cat, nil
}
