package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "journeyd",
		Short: "Value Journey Quest server",
		Long: `journeyd serves the Value Journey Quest: a stakeholder picks a current and an
aspirational venture level, answers the level questions, and receives a scored
gap analysis. Completed answer sets are ranked on a local leaderboard and
optionally shared with the progress service.

Configuration is read from the environment and an optional .env file.`,
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newCatalogCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
