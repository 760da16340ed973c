package artifact

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/GoCodeAlone/artifactkit/store"
)

func TestOperationsRecordSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	client := NewClient(store.NewMemoryStore(), testScope, WithTracer(tp.Tracer("test")))
	root := t.TempDir()
	files := writeFiles(t, root, [2]string{"a.txt", "a"})

	if _, err := client.Upload(context.Background(), "art", files, root, UploadOptions{}); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if _, err := client.Get(context.Background(), "missing", FindOptions{}); err == nil {
		t.Fatal("expected Get of a missing artifact to fail")
	}

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	if spans[0].Name != "artifact.upload" || spans[0].Status.Code != codes.Ok {
		t.Errorf("upload span = %s %v", spans[0].Name, spans[0].Status)
	}
	if spans[1].Name != "artifact.get" || spans[1].Status.Code != codes.Error {
		t.Errorf("get span = %s %v", spans[1].Name, spans[1].Status)
	}

	var key string
	for _, kv := range spans[0].Attributes {
		if kv.Key == "artifact.key" {
			key = kv.Value.AsString()
		}
	}
	if key != "artifacts/myrepo/42/art.zip" {
		t.Errorf("upload span key attribute = %q", key)
	}
}
