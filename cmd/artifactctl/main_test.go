package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/GoCodeAlone/artifactkit/artifact"
)

// setupEnv points the commands at a local store and captures output. It
// returns the stdout buffer and the workspace directory.
func setupEnv(t *testing.T, extra map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	storeRoot := t.TempDir()
	workspace := t.TempDir()
	env := map[string]string{
		"ARTIFACT_BACKEND":    "local",
		"ARTIFACT_LOCAL_ROOT": storeRoot,
		"GITHUB_REPOSITORY":   "acme/widgets",
		"GITHUB_RUN_ID":       "42",
		"GITHUB_WORKSPACE":    workspace,
	}
	for k, v := range extra {
		env[k] = v
	}

	var out, errOut bytes.Buffer
	prevOut, prevErr, prevLookup := stdout, stderr, lookupEnv
	stdout, stderr = &out, &errOut
	lookupEnv = func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	t.Cleanup(func() { stdout, stderr, lookupEnv = prevOut, prevErr, prevLookup })
	return &out, workspace
}

func noDotenv(t *testing.T) string {
	return "--env-file=" + filepath.Join(t.TempDir(), "none.env")
}

func TestUploadListDownloadDelete(t *testing.T) {
	ctx := context.Background()
	out, workspace := setupEnv(t, nil)
	src := t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "a.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "sub", "b.txt"), []byte("bye"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := runUpload(ctx, []string{noDotenv(t), "--name", "build-output", "--root", src,
		filepath.Join(src, "a.txt"), filepath.Join(src, "sub", "b.txt")})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.Contains(out.String(), "artifacts/acme/widgets/42/build-output.zip") {
		t.Errorf("upload output missing key: %q", out.String())
	}

	out.Reset()
	if err := runList(ctx, []string{noDotenv(t), "--json", "--latest"}); err != nil {
		t.Fatalf("list: %v", err)
	}
	var listed artifact.ListResponse
	if err := json.Unmarshal(out.Bytes(), &listed); err != nil {
		t.Fatalf("decode list output: %v\n%s", err, out.String())
	}
	if len(listed.Artifacts) != 1 || listed.Artifacts[0].Name != "build-output" {
		t.Fatalf("unexpected listing: %+v", listed.Artifacts)
	}

	out.Reset()
	if err := runGet(ctx, []string{noDotenv(t), "--name", "build-output"}); err != nil {
		t.Fatalf("get: %v", err)
	}
	if !strings.Contains(out.String(), "build-output") || !strings.Contains(out.String(), "NAME") {
		t.Errorf("unexpected get output: %q", out.String())
	}

	if err := runDownload(ctx, []string{noDotenv(t), "--name", "build-output"}); err != nil {
		t.Fatalf("download: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(workspace, "sub", "b.txt"))
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(got) != "bye" {
		t.Errorf("downloaded content = %q, want %q", got, "bye")
	}

	if err := runDelete(ctx, []string{noDotenv(t), "--name", "build-output"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	err = runGet(ctx, []string{noDotenv(t), "--name", "build-output"})
	if !errors.Is(err, artifact.ErrArtifactNotFound) {
		t.Fatalf("expected ErrArtifactNotFound after delete, got %v", err)
	}
}

func TestCrossRunFlags(t *testing.T) {
	ctx := context.Background()
	out, _ := setupEnv(t, nil)
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "a.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := runUpload(ctx, []string{noDotenv(t), "--name", "report", "--root", src, filepath.Join(src, "a.txt")}); err != nil {
		t.Fatalf("upload: %v", err)
	}

	out.Reset()
	err := runList(ctx, []string{noDotenv(t), "--owner", "acme", "--repo", "widgets", "--run-id", "42"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out.String(), "report") {
		t.Errorf("cross-run list missing artifact: %q", out.String())
	}

	out.Reset()
	if err := runList(ctx, []string{noDotenv(t), "--repo", "widgets", "--run-id", "43"}); err != nil {
		t.Fatalf("list other run: %v", err)
	}
	if !strings.Contains(out.String(), "No artifacts found.") {
		t.Errorf("expected empty listing, got %q", out.String())
	}

	if err := runList(ctx, []string{noDotenv(t), "--repo", "widgets"}); err == nil {
		t.Fatal("expected error when --run-id is missing")
	}
}

func TestUploadWithoutFiles(t *testing.T) {
	setupEnv(t, nil)
	err := runUpload(context.Background(), []string{noDotenv(t), "--name", "empty", "--root", t.TempDir()})
	if !errors.Is(err, artifact.ErrNoFilesFound) {
		t.Fatalf("expected ErrNoFilesFound, got %v", err)
	}
}

func TestMissingConfiguration(t *testing.T) {
	setupEnv(t, map[string]string{"ARTIFACT_BACKEND": "s3"})
	err := runList(context.Background(), []string{noDotenv(t)})
	if !errors.Is(err, artifact.ErrConfig) {
		t.Fatalf("expected ErrConfig without BUCKET_NAME, got %v", err)
	}

	setupEnv(t, map[string]string{"GITHUB_RUN_ID": ""})
	err = runList(context.Background(), []string{noDotenv(t)})
	if !errors.Is(err, artifact.ErrConfig) {
		t.Fatalf("expected ErrConfig without run id, got %v", err)
	}
}

func TestRequiredNameAndHelp(t *testing.T) {
	setupEnv(t, nil)
	if err := runUpload(context.Background(), []string{noDotenv(t)}); err == nil {
		t.Fatal("expected error without --name")
	}
	if err := runGet(context.Background(), []string{"-h"}); err != nil {
		t.Fatalf("-h should not fail: %v", err)
	}
}

func TestMetricsFile(t *testing.T) {
	setupEnv(t, nil)
	path := filepath.Join(t.TempDir(), "artifact.prom")
	if err := runList(context.Background(), []string{noDotenv(t), "--metrics-file", path}); err != nil {
		t.Fatalf("list: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read metrics file: %v", err)
	}
	if !strings.Contains(string(data), `artifact_operations_total{operation="list",status="success"} 1`) {
		t.Errorf("metrics file missing list counter:\n%s", data)
	}
}

func TestMetricsPush(t *testing.T) {
	setupEnv(t, nil)
	var pushed []byte
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/metrics/job/artifactctl" {
			http.NotFound(w, r)
			return
		}
		pushed, _ = io.ReadAll(r.Body)
	}))
	defer gateway.Close()

	if err := runList(context.Background(), []string{noDotenv(t), "--metrics-push", gateway.URL}); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(string(pushed), "artifact_operations_total") {
		t.Errorf("gateway received no operation counter: %q", pushed)
	}
}
