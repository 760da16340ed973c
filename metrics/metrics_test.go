package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordOperation(t *testing.T) {
	c := New()
	c.RecordOperation("upload", nil, 10*time.Millisecond)
	c.RecordOperation("upload", nil, 20*time.Millisecond)
	c.RecordOperation("upload", errors.New("boom"), time.Millisecond)

	if got := testutil.ToFloat64(c.Operations.WithLabelValues("upload", StatusSuccess)); got != 2 {
		t.Errorf("success count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.Operations.WithLabelValues("upload", StatusError)); got != 1 {
		t.Errorf("error count = %v, want 1", got)
	}
}

func TestRecordTransfer(t *testing.T) {
	c := New()
	c.RecordTransfer(DirectionUpload, 100)
	c.RecordTransfer(DirectionUpload, 0)
	c.RecordTransfer(DirectionDownload, 7)

	if got := testutil.ToFloat64(c.TransferBytes.WithLabelValues(DirectionUpload)); got != 100 {
		t.Errorf("upload bytes = %v, want 100", got)
	}
	if got := testutil.ToFloat64(c.TransferBytes.WithLabelValues(DirectionDownload)); got != 7 {
		t.Errorf("download bytes = %v, want 7", got)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.RecordOperation("list", nil, time.Second)
	c.RecordTransfer(DirectionDownload, 1)
}

func TestPush(t *testing.T) {
	c := New()
	c.RecordOperation("get", nil, time.Millisecond)

	var (
		method, path string
		body         []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := c.Push(context.Background(), srv.URL, "artifactctl"); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if method != http.MethodPut {
		t.Errorf("method = %s, want PUT", method)
	}
	if path != "/metrics/job/artifactctl" {
		t.Errorf("path = %s", path)
	}
	if !strings.Contains(string(body), "artifact_operations_total") {
		t.Errorf("pushed body missing operation counter")
	}
}

func TestPushFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if err := New().Push(context.Background(), srv.URL, "artifactctl"); err == nil {
		t.Fatal("expected an error from a failing gateway")
	}
}

func TestWriteTextfile(t *testing.T) {
	c := New()
	c.RecordOperation("get", nil, time.Millisecond)

	path := filepath.Join(t.TempDir(), "artifact.prom")
	if err := c.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(data), `artifact_operations_total{operation="get",status="success"} 1`) {
		t.Errorf("textfile missing operation counter:\n%s", data)
	}
	if !strings.Contains(string(data), "artifact_operation_duration_seconds") {
		t.Errorf("textfile missing duration histogram:\n%s", data)
	}
}
