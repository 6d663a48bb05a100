package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"homecook/videosearch/internal/catalog"
	"homecook/videosearch/internal/providers/youtube"
	"homecook/videosearch/internal/search"
)

// Runtime is the wired search stack shared by the server and the CLI.
type Runtime struct {
	Catalog *catalog.Catalog
	Client  *youtube.Client
	Service *search.Service
	closers []func() error
}

// Close releases cache backends opened by BuildRuntime.
func (r *Runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		_ = r.closers[i]()
	}
	r.closers = nil
}

func NewLogger(out io.Writer, levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(out, options))
	}
	return slog.New(slog.NewTextHandler(out, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// BuildRuntime wires the catalog, the YouTube client and the search service
// from cfg. Cache backends that cannot be reached are skipped with a warning.
func BuildRuntime(ctx context.Context, cfg Config, logger *slog.Logger) *Runtime {
	vocab := catalog.Default()
	client := youtube.NewClient(youtube.Config{
		APIKey:  cfg.YouTubeAPIKey,
		BaseURL: cfg.YouTubeBaseURL,
		Client: &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		Locale:            vocab,
		Logger:            logger,
		RequestsPerSecond: cfg.ProviderRPS,
	})
	if !client.Enabled() {
		logger.Warn("youtube api key not configured, searches will fail")
	}

	runtime := &Runtime{Catalog: vocab, Client: client}
	opts := []search.ServiceOption{
		search.WithLogger(logger),
		search.WithPolicy(search.Policy{
			SelectionLimit:        cfg.SelectionLimit,
			CombinationThreshold:  cfg.CombinationThreshold,
			SelectionWindowMonths: cfg.SelectionWindowMonths,
			TrendingWindowMonths:  cfg.TrendingWindowMonths,
		}),
		search.WithMaxConcurrency(cfg.MaxConcurrency),
		search.WithRetry(retryConfig(cfg.RetryAttempts)),
	}
	opts = append(opts, runtime.cacheOptions(ctx, cfg, logger)...)
	runtime.Service = search.NewService(client, vocab, cfg.SearchTimeout, opts...)
	return runtime
}

func retryConfig(attempts int) search.RetryConfig {
	retry := search.DefaultRetryConfig()
	if attempts > 0 {
		retry.MaxAttempts = attempts
	}
	return retry
}

func (r *Runtime) cacheOptions(ctx context.Context, cfg Config, logger *slog.Logger) []search.ServiceOption {
	var opts []search.ServiceOption

	if cfg.CacheDisabled {
		opts = append(opts, search.WithCacheDisabled(true))
		return opts
	}

	if cfg.CacheTTL > 0 {
		opts = append(opts, search.WithCacheTTL(cfg.CacheTTL))
	}

	if redisURL := strings.TrimSpace(cfg.RedisURL); redisURL != "" {
		redisOpts, err := redis.ParseURL(redisURL)
		if err != nil {
			logger.Warn("invalid redis url, using in-memory cache only", slog.String("error", err.Error()))
			return opts
		}
		backend := search.NewRedisCacheBackend(redis.NewClient(redisOpts))
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := backend.Ping(pingCtx); err != nil {
			_ = backend.Close()
			logger.Warn("redis not reachable, using in-memory cache only", slog.String("error", err.Error()))
			return opts
		}
		r.closers = append(r.closers, backend.Close)
		logger.Info("redis connected", slog.String("addr", redisOpts.Addr))
		return append(opts, search.WithCacheBackend(backend))
	}

	if cacheDir := strings.TrimSpace(cfg.CacheDir); cacheDir != "" {
		backend, err := search.OpenBadgerCacheBackend(search.BadgerCacheOptions{Dir: cacheDir, Logger: logger})
		if err != nil {
			logger.Warn("badger cache unavailable, using in-memory cache only", slog.String("error", err.Error()))
			return opts
		}
		r.closers = append(r.closers, backend.Close)
		logger.Info("badger cache opened", slog.String("dir", cacheDir))
		opts = append(opts, search.WithCacheBackend(backend))
	}

	return opts
}
