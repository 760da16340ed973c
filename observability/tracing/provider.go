// Package tracing installs an OTLP trace exporter when one is configured,
// so the spans recorded around artifact operations leave the process.
package tracing

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Environment variables read by ConfigFromEnv.
const (
	EnvEndpoint   = "OTEL_EXPORTER_OTLP_ENDPOINT"
	EnvInsecure   = "OTEL_EXPORTER_OTLP_INSECURE"
	EnvSampleRate = "OTEL_TRACES_SAMPLER_ARG"
)

// Config holds configuration for the TracerProvider setup.
type Config struct {
	// Endpoint is the OTLP HTTP endpoint (e.g., "localhost:4318"). Empty
	// disables export.
	Endpoint string
	// ServiceName is the service name reported in traces.
	ServiceName string
	// ServiceVersion is the optional service version.
	ServiceVersion string
	// Insecure disables TLS for the OTLP exporter.
	Insecure bool
	// SampleRate is the trace sampling ratio (0.0 to 1.0). 0 means always sample.
	SampleRate float64
}

// ConfigFromEnv reads the exporter settings. The endpoint may be given
// as a URL; its scheme decides Insecure unless the variable says otherwise.
func ConfigFromEnv(serviceName string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Config{ServiceName: serviceName, SampleRate: 1.0}
	if v, ok := lookup(EnvEndpoint); ok {
		v = strings.TrimSpace(v)
		switch {
		case strings.HasPrefix(v, "http://"):
			cfg.Insecure = true
			v = strings.TrimPrefix(v, "http://")
		case strings.HasPrefix(v, "https://"):
			v = strings.TrimPrefix(v, "https://")
		}
		cfg.Endpoint = strings.TrimSuffix(v, "/")
	}
	if v, ok := lookup(EnvInsecure); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return Config{}, fmt.Errorf("%s=%q is not a boolean", EnvInsecure, v)
		}
		cfg.Insecure = b
	}
	if v, ok := lookup(EnvSampleRate); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || f < 0 || f > 1 {
			return Config{}, fmt.Errorf("%s=%q must be a ratio between 0 and 1", EnvSampleRate, v)
		}
		cfg.SampleRate = f
	}
	return cfg, nil
}

// Enabled reports whether an exporter endpoint is configured.
func (c Config) Enabled() bool { return c.Endpoint != "" }

// Provider wraps an OpenTelemetry TracerProvider and handles lifecycle.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// NewProvider creates a TracerProvider exporting to cfg.Endpoint and sets
// it as the global provider.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}
	return newProvider(ctx, cfg, sdktrace.WithBatcher(exporter))
}

func newProvider(ctx context.Context, cfg Config, export sdktrace.TracerProviderOption) (*Provider, error) {
	attrs := []resource.Option{
		resource.WithAttributes(semconv.ServiceNameKey.String(cfg.ServiceName)),
	}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.ServiceVersionKey.String(cfg.ServiceVersion)))
	}
	res, err := resource.New(ctx, attrs...)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRate > 0 && cfg.SampleRate < 1.0 {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	tp := sdktrace.NewTracerProvider(
		export,
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return &Provider{tp: tp}, nil
}

// TracerProvider returns the underlying SDK TracerProvider.
func (p *Provider) TracerProvider() *sdktrace.TracerProvider {
	return p.tp
}

// Shutdown flushes pending spans and stops the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}
