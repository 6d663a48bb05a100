package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	apihttp "homecook/videosearch/internal/api/http"
	"homecook/videosearch/internal/app"
	"homecook/videosearch/internal/metrics"
	"homecook/videosearch/internal/telemetry"
)

func main() {
	cfg := app.LoadConfig()
	logger := app.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	tracing := telemetry.ConfigFromEnv("recipe-search")
	tracing.Logger = logger
	shutdownTracer, err := telemetry.Init(context.Background(), tracing)
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "recipe-search"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.Duration("searchTimeout", cfg.SearchTimeout),
		slog.Duration("requestTimeout", cfg.RequestTimeout),
		slog.Int("maxConcurrency", cfg.MaxConcurrency),
		slog.Int("selectionLimit", cfg.SelectionLimit),
		slog.Int("combinationThreshold", cfg.CombinationThreshold),
		slog.Float64("providerRPS", cfg.ProviderRPS),
		slog.Bool("hasYouTubeKey", cfg.YouTubeAPIKey != ""),
		slog.Bool("hasRedis", strings.TrimSpace(cfg.RedisURL) != ""),
		slog.String("cacheDir", cfg.CacheDir),
		slog.Duration("cacheTTL", cfg.CacheTTL),
		slog.Bool("cacheDisabled", cfg.CacheDisabled),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runtime := app.BuildRuntime(rootCtx, cfg, logger)
	defer runtime.Close()

	handler := apihttp.NewServer(runtime.Service,
		apihttp.WithLogger(logger),
		apihttp.WithCatalog(runtime.Catalog),
		apihttp.WithRateLimit(cfg.APIRateLimitRPS, cfg.APIRateLimitBurst),
	).Handler()
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// /recipes/search/stream holds the connection for the whole fan-out.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	runtime.Service.StartBackground(rootCtx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("recipe search service started",
		slog.String("addr", cfg.HTTPAddr),
		slog.Duration("timeout", cfg.SearchTimeout),
	)

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			runtime.Close()
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("recipe search service stopped")
}
