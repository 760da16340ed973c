package tracing

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func env(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestConfigFromEnv(t *testing.T) {
	cfg, err := ConfigFromEnv("artifactctl", env(nil))
	if err != nil {
		t.Fatalf("ConfigFromEnv: %v", err)
	}
	if cfg.Enabled() {
		t.Error("export should be disabled without an endpoint")
	}

	cfg, err = ConfigFromEnv("artifactctl", env(map[string]string{EnvEndpoint: "http://collector:4318/"}))
	if err != nil {
		t.Fatalf("ConfigFromEnv: %v", err)
	}
	if cfg.Endpoint != "collector:4318" || !cfg.Insecure || !cfg.Enabled() {
		t.Errorf("unexpected config: %+v", cfg)
	}

	cfg, err = ConfigFromEnv("artifactctl", env(map[string]string{EnvEndpoint: "https://collector", EnvSampleRate: "0.25"}))
	if err != nil {
		t.Fatalf("ConfigFromEnv: %v", err)
	}
	if cfg.Insecure || cfg.SampleRate != 0.25 {
		t.Errorf("unexpected config: %+v", cfg)
	}

	if _, err := ConfigFromEnv("x", env(map[string]string{EnvSampleRate: "2"})); err == nil {
		t.Error("expected error for sample rate above 1")
	}
	if _, err := ConfigFromEnv("x", env(map[string]string{EnvInsecure: "maybe"})); err == nil {
		t.Error("expected error for non-boolean insecure flag")
	}
}

func TestProviderExportsSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	exporter := tracetest.NewInMemoryExporter()
	p, err := newProvider(context.Background(), Config{ServiceName: "test", ServiceVersion: "1.0"}, sdktrace.WithSyncer(exporter))
	if err != nil {
		t.Fatalf("newProvider: %v", err)
	}

	_, span := otel.Tracer("test").Start(context.Background(), "artifact.upload")
	span.End()

	if got := len(exporter.GetSpans()); got != 1 {
		t.Fatalf("exported %d spans, want 1", got)
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestShutdownNil(t *testing.T) {
	var p *Provider
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown of nil provider should not error: %v", err)
	}
}
