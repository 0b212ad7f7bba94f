package otelx

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotfinder/libs/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Config selects where spans go. The zero value exports nothing.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Environment    string
	// Endpoint is the host:port of an OTLP/gRPC collector.
	Endpoint    string
	Insecure    bool
	SampleRatio float64
	Timeout     time.Duration
}

// ConfigFromEnv reads the OTEL_* variables. The endpoint may carry an
// http:// or https:// scheme, which decides transport security and overrides
// OTEL_EXPORTER_OTLP_INSECURE.
func ConfigFromEnv(serviceName string) (Config, error) {
	cfg := Config{
		ServiceName:    serviceName,
		ServiceVersion: config.String("SERVICE_VERSION", "dev"),
		Environment:    config.String("DEPLOYMENT_ENV", ""),
	}
	var err error
	if cfg.Enabled, err = config.Bool("OTEL_ENABLED", true); err != nil {
		return cfg, err
	}
	if cfg.Insecure, err = config.Bool("OTEL_EXPORTER_OTLP_INSECURE", true); err != nil {
		return cfg, err
	}
	if cfg.Timeout, err = config.Duration("OTEL_EXPORTER_OTLP_TIMEOUT", 3*time.Second); err != nil {
		return cfg, err
	}
	if cfg.SampleRatio, err = sampleRatio(config.String("OTEL_SAMPLING_RATIO", "1")); err != nil {
		return cfg, err
	}

	endpoint := strings.TrimSpace(config.String("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"))
	switch {
	case strings.HasPrefix(endpoint, "http://"):
		cfg.Insecure = true
	case strings.HasPrefix(endpoint, "https://"):
		cfg.Insecure = false
	}
	if i := strings.Index(endpoint, "://"); i >= 0 {
		endpoint = endpoint[i+3:]
	}
	cfg.Endpoint = strings.TrimRight(endpoint, "/")
	if cfg.Enabled && cfg.Endpoint == "" {
		return cfg, errors.New("OTEL_EXPORTER_OTLP_ENDPOINT is empty")
	}
	return cfg, nil
}

func sampleRatio(v string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || f < 0 || f > 1 {
		return 0, fmt.Errorf("OTEL_SAMPLING_RATIO must be within [0, 1] (got %q)", v)
	}
	return f, nil
}

// Setup installs the W3C propagators and, when enabled, a batching tracer
// provider. The returned func flushes and stops it.
func Setup(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	if cfg.Timeout > 0 {
		opts = append(opts, otlptracegrpc.WithTimeout(cfg.Timeout))
	}
	exp, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(cfg.attributes()...))
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

func (cfg Config) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	}
	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(cfg.Environment))
	}
	return attrs
}

// Tracer returns a named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
