package commands

import (
	"github.com/spf13/cobra"

	"homecook/videosearch/internal/catalog"
)

func newCatalogCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List the known ingredient and kitchenware tags",
		Long: `List every tag the engine knows, grouped by class, with labels in the
chosen language.

Examples:
  recipectl catalog --lang ja
  recipectl catalog --json | jq '.meats[].key'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeCatalog(cmd.OutOrStdout(), catalog.Default().Describe(opts.lang), opts.outputJSON)
		},
	}
}
