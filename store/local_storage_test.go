package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalStorage_PutGetDelete(t *testing.T) {
	dir := t.TempDir()
	ls, err := NewLocalStorage(dir)
	if err != nil {
		t.Fatalf("NewLocalStorage: %v", err)
	}

	ctx := context.Background()

	content := []byte("hello archive")
	info, err := ls.Put(ctx, "artifacts/repo/1/out.zip", bytes.NewReader(content))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if info.Size != int64(len(content)) {
		t.Errorf("put size = %d, want %d", info.Size, len(content))
	}
	if info.Checksum == "" {
		t.Error("expected checksum from Put")
	}

	rc, err := ls.Get(ctx, "artifacts/repo/1/out.zip")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("content mismatch: got %q, want %q", got, content)
	}

	head, err := ls.Head(ctx, "artifacts/repo/1/out.zip")
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if !head.Exists || head.Size != int64(len(content)) || head.Checksum != info.Checksum {
		t.Errorf("unexpected head result: %+v", head)
	}

	if err := ls.Delete(ctx, "artifacts/repo/1/out.zip"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	head, err = ls.Head(ctx, "artifacts/repo/1/out.zip")
	if err != nil {
		t.Fatalf("Head after delete: %v", err)
	}
	if head.Exists {
		t.Fatal("expected object to be gone after delete")
	}
	if _, err := ls.Get(ctx, "artifacts/repo/1/out.zip"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after delete: expected ErrNotFound, got %v", err)
	}
	if err := ls.Delete(ctx, "artifacts/repo/1/out.zip"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Delete: expected ErrNotFound, got %v", err)
	}
}

func TestLocalStorage_PutLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	ls, err := NewLocalStorage(dir)
	if err != nil {
		t.Fatalf("NewLocalStorage: %v", err)
	}
	if _, err := ls.Put(context.Background(), "a/b.zip", bytes.NewReader([]byte("x"))); err != nil {
		t.Fatalf("Put: %v", err)
	}
	entries, err := os.ReadDir(filepath.Join(dir, "a"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "b.zip" {
		t.Fatalf("unexpected directory contents: %v", entries)
	}
}

func TestLocalStorage_ListPrefixAndPagination(t *testing.T) {
	dir := t.TempDir()
	ls, err := NewLocalStorage(dir)
	if err != nil {
		t.Fatalf("NewLocalStorage: %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("artifacts/repo/1/a%d.zip", i)
		if _, err := ls.Put(ctx, key, bytes.NewReader([]byte("data"))); err != nil {
			t.Fatalf("Put %s: %v", key, err)
		}
	}
	if _, err := ls.Put(ctx, "artifacts/repo/10/other.zip", bytes.NewReader([]byte("data"))); err != nil {
		t.Fatalf("Put: %v", err)
	}

	page, err := ls.List(ctx, "artifacts/repo/1/", ListOptions{MaxKeys: 2})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page.Objects) != 2 || page.NextContinuationToken == "" {
		t.Fatalf("first page: got %d objects, token %q", len(page.Objects), page.NextContinuationToken)
	}

	var keys []string
	for _, o := range page.Objects {
		keys = append(keys, o.Key)
	}
	for page.NextContinuationToken != "" {
		page, err = ls.List(ctx, "artifacts/repo/1/", ListOptions{MaxKeys: 2, ContinuationToken: page.NextContinuationToken})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		for _, o := range page.Objects {
			keys = append(keys, o.Key)
		}
	}
	if len(keys) != 5 {
		t.Fatalf("expected 5 keys across pages, got %v", keys)
	}
	for i, k := range keys {
		want := fmt.Sprintf("artifacts/repo/1/a%d.zip", i)
		if k != want {
			t.Errorf("keys[%d] = %q, want %q", i, k, want)
		}
	}
}

func TestLocalStorage_ListMissingPrefix(t *testing.T) {
	ls, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage: %v", err)
	}
	page, err := ls.List(context.Background(), "artifacts/nothing/here/", ListOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page.Objects) != 0 {
		t.Fatalf("expected empty page, got %v", page.Objects)
	}
}

func TestLocalStorage_PathTraversal(t *testing.T) {
	ls, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStorage: %v", err)
	}
	_, err = ls.Put(context.Background(), "../escape.zip", bytes.NewReader(nil))
	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		t.Fatalf("expected ClientError for traversal, got %v", err)
	}
}
