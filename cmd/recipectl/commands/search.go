package commands

import (
	"github.com/spf13/cobra"

	"homecook/videosearch/internal/search"
)

func newSearchCmd(opts *options) *cobra.Command {
	var tags, tools []string
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Recommend videos for selected ingredients, ranked by likes",
		Long: `Recommend videos for selected ingredients and kitchenware.

Every vegetable is paired with every meat, each pairing is searched on its
own, and the merged results are ranked by like count.

Examples:
  recipectl search --tags potato,pork
  recipectl search --tags tomato,eggs,rice --tools rice_cooker --lang zh-Hans`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := opts.runtime(cmd.Context(), cmd.ErrOrStderr())
			defer rt.Close()

			response, err := rt.Service.SearchBySelection(cmd.Context(), tags, tools, opts.lang, search.BypassCache(opts.noCache))
			if err != nil {
				return err
			}
			return writeResponse(cmd.OutOrStdout(), response, opts.outputJSON)
		},
	}
	cmd.Flags().StringSliceVarP(&tags, "tags", "t", nil, "ingredient tags, comma separated")
	cmd.Flags().StringSliceVar(&tools, "tools", nil, "kitchenware tags, comma separated")
	return cmd
}

func newTrendingCmd(opts *options) *cobra.Command {
	var (
		tags       []string
		maxResults int
	)
	cmd := &cobra.Command{
		Use:   "trending",
		Short: "List the most viewed recent videos for a few tags",
		Long: `List the most viewed recent cooking videos for a few tags.

The search widens from last month to any upload date when too few videos
turn up.

Examples:
  recipectl trending --tags curry --max 5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := opts.runtime(cmd.Context(), cmd.ErrOrStderr())
			defer rt.Close()

			response, err := rt.Service.SearchTrending(cmd.Context(), tags, opts.lang, maxResults, search.BypassCache(opts.noCache))
			if err != nil {
				return err
			}
			return writeResponse(cmd.OutOrStdout(), response, opts.outputJSON)
		},
	}
	cmd.Flags().StringSliceVarP(&tags, "tags", "t", nil, "tags, comma separated")
	cmd.Flags().IntVarP(&maxResults, "max", "n", 10, "number of videos (1-50)")
	return cmd
}

func newGachaCmd(opts *options) *cobra.Command {
	var servings int
	cmd := &cobra.Command{
		Use:   "gacha",
		Short: "Draw random ingredients and show trending videos for them",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := opts.runtime(cmd.Context(), cmd.ErrOrStderr())
			defer rt.Close()

			response, err := rt.Service.Gacha(cmd.Context(), opts.lang, servings)
			if err != nil {
				return err
			}
			return writeResponse(cmd.OutOrStdout(), response, opts.outputJSON)
		},
	}
	cmd.Flags().IntVarP(&servings, "servings", "s", 4, "number of videos to draw")
	return cmd
}
