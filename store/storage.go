package store

import (
	"context"
	"io"
	"time"
)

// MaxListKeys is the largest page a single List call may return.
const MaxListKeys = 1000

// ObjectInfo describes metadata about an object in an object store.
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	Checksum     string    `json:"checksum,omitempty"`
	LastModified time.Time `json:"lastModified"`
	// Exists is false when Head found no object at Key.
	Exists bool `json:"exists"`
}

// ListOptions bounds a single List call.
type ListOptions struct {
	// MaxKeys caps the page size. Zero or values above MaxListKeys are
	// treated as MaxListKeys.
	MaxKeys int32
	// ContinuationToken resumes a previous listing. Empty starts at the
	// beginning of the prefix.
	ContinuationToken string
}

// ListPage is one page of a prefix scan, in lexicographic key order.
type ListPage struct {
	Objects []ObjectInfo
	// NextContinuationToken is empty when the scan is complete.
	NextContinuationToken string
}

// ObjectStore defines the interface for object storage backends.
// Keys are opaque slash-separated strings; backends never read or write
// outside the key they are given.
type ObjectStore interface {
	// Put streams body into the object at key, replacing any previous
	// object. The body is consumed incrementally.
	Put(ctx context.Context, key string, body io.Reader) (ObjectInfo, error)
	// Get opens the object at key. The caller must close the reader.
	// Returns ErrNotFound when the object does not exist.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Head returns object metadata. A missing object is reported through
	// ObjectInfo.Exists, not an error.
	Head(ctx context.Context, key string) (ObjectInfo, error)
	// List returns one page of objects whose key starts with prefix.
	List(ctx context.Context, prefix string, opts ListOptions) (ListPage, error)
	// Delete removes the object at key.
	Delete(ctx context.Context, key string) error
}

func pageSize(n int32) int32 {
	if n <= 0 || n > MaxListKeys {
		return MaxListKeys
	}
	return n
}
