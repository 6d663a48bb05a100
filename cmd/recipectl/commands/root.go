package commands

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"homecook/videosearch/internal/app"
)

type options struct {
	apiKey     string
	baseURL    string
	lang       string
	timeout    time.Duration
	outputJSON bool
	noCache    bool
	verbose    bool
}

// Execute runs the root command with the process arguments.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

// NewRootCmd builds the command tree. Every call returns fresh flag state.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "recipectl",
		Short: "Find cooking videos for the ingredients you have",
		Long: `recipectl - recipe video discovery from the command line.

Pick ingredients and kitchenware, and recipectl finds the most liked recent
cooking videos for every vegetable and meat pairing. Trending and gacha
modes rank by view count instead.

Examples:
  recipectl search --tags potato,carrot,pork --tools oven
  recipectl trending --tags curry --max 5 --json | jq '.items[0].url'
  recipectl gacha --lang ja
  recipectl catalog --lang zh-Hans`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.apiKey, "api-key", "", "YouTube Data API key (default $YOUTUBE_API_KEY)")
	flags.StringVar(&opts.baseURL, "base-url", "", "YouTube Data API base URL (default $YOUTUBE_BASE_URL)")
	flags.StringVarP(&opts.lang, "lang", "l", "en", "response language")
	flags.DurationVar(&opts.timeout, "timeout", 0, "overall search timeout (default $SEARCH_TIMEOUT_SECONDS)")
	flags.BoolVar(&opts.outputJSON, "json", false, "output as JSON (for piping)")
	flags.BoolVar(&opts.noCache, "no-cache", false, "bypass the response cache")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log search progress to stderr")

	root.AddCommand(newSearchCmd(opts))
	root.AddCommand(newTrendingCmd(opts))
	root.AddCommand(newGachaCmd(opts))
	root.AddCommand(newCatalogCmd(opts))
	return root
}

// config merges the environment with flag overrides.
func (o *options) config() app.Config {
	cfg := app.LoadConfig()
	if key := strings.TrimSpace(o.apiKey); key != "" {
		cfg.YouTubeAPIKey = key
	}
	if baseURL := strings.TrimSpace(o.baseURL); baseURL != "" {
		cfg.YouTubeBaseURL = baseURL
	}
	if o.timeout > 0 {
		cfg.SearchTimeout = o.timeout
	}
	return cfg
}

func (o *options) runtime(ctx context.Context, stderr io.Writer) *app.Runtime {
	cfg := o.config()
	level := "error"
	if o.verbose {
		level = "debug"
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return app.BuildRuntime(ctx, cfg, app.NewLogger(stderr, level, "text"))
}
