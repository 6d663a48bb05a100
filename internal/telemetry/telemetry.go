package telemetry

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "homecook/videosearch"

// Config selects the OTLP collector for recipe search spans. An empty Endpoint
// disables export.
type Config struct {
	ServiceName string
	// Endpoint is host:port or a URL. http:// endpoints are dialled without TLS.
	Endpoint string
	// SampleRatio applies to root spans only; children follow their parent.
	SampleRatio float64
	Logger      *slog.Logger
}

// ConfigFromEnv reads OTEL_EXPORTER_OTLP_ENDPOINT and OTEL_TRACES_SAMPLER_ARG.
func ConfigFromEnv(serviceName string) Config {
	cfg := Config{
		ServiceName: serviceName,
		Endpoint:    strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		SampleRatio: 1,
	}
	if raw := strings.TrimSpace(os.Getenv("OTEL_TRACES_SAMPLER_ARG")); raw != "" {
		if ratio, err := strconv.ParseFloat(raw, 64); err == nil && ratio >= 0 && ratio <= 1 {
			cfg.SampleRatio = ratio
		}
	}
	return cfg
}

// Init installs the global trace provider. Without an endpoint, or when the
// exporter cannot be built, the service runs untraced and shutdown is a noop.
func Init(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }
	if cfg.Endpoint == "" {
		return noop, nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	host, insecure := splitEndpoint(cfg.Endpoint)
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(host),
		otlptracehttp.WithTimeout(3 * time.Second),
		otlptracehttp.WithRetry(otlptracehttp.RetryConfig{Enabled: false}),
	}
	if insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	exporter, err := otlptracehttp.New(initCtx, opts...)
	if err != nil {
		logger.Warn("otlp exporter unavailable, tracing disabled",
			slog.String("endpoint", cfg.Endpoint),
			slog.String("error", err.Error()),
		)
		return noop, nil
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	logger.Info("tracing enabled", slog.String("endpoint", host), slog.Float64("sampleRatio", cfg.SampleRatio))
	return tp.Shutdown, nil
}

// splitEndpoint returns the host:port the exporter dials and whether TLS is
// skipped. Bare host:port values are treated as plain HTTP.
func splitEndpoint(endpoint string) (string, bool) {
	if !strings.Contains(endpoint, "://") {
		return endpoint, true
	}
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Host == "" {
		return endpoint, true
	}
	return parsed.Host, parsed.Scheme != "https"
}

// Tracer returns the tracer for cascade and client spans. It is a noop until
// Init installs an exporter.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}
