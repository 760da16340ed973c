package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// gcsBucketHandle abstracts a GCS bucket handle for testability.
type gcsBucketHandle interface {
	Objects(ctx context.Context, q *storage.Query) objectIterator
	Object(name string) objectHandle
}

// objectIterator abstracts a GCS object iterator.
type objectIterator interface {
	iterator.Pageable
	Next() (*storage.ObjectAttrs, error)
}

// objectHandle abstracts a GCS object handle.
type objectHandle interface {
	NewReader(ctx context.Context) (io.ReadCloser, error)
	NewWriter(ctx context.Context) gcsWriter
	Delete(ctx context.Context) error
	Attrs(ctx context.Context) (*storage.ObjectAttrs, error)
}

// gcsWriter is the part of *storage.Writer used after a streamed upload.
type gcsWriter interface {
	io.WriteCloser
	Attrs() *storage.ObjectAttrs
}

// realBucketHandle wraps *storage.BucketHandle to satisfy gcsBucketHandle.
type realBucketHandle struct{ bh *storage.BucketHandle }

func (r *realBucketHandle) Objects(ctx context.Context, q *storage.Query) objectIterator {
	return r.bh.Objects(ctx, q)
}

func (r *realBucketHandle) Object(name string) objectHandle {
	return &realObjectHandle{r.bh.Object(name)}
}

// realObjectHandle wraps *storage.ObjectHandle to satisfy objectHandle.
type realObjectHandle struct{ oh *storage.ObjectHandle }

func (r *realObjectHandle) NewReader(ctx context.Context) (io.ReadCloser, error) {
	return r.oh.NewReader(ctx)
}

func (r *realObjectHandle) NewWriter(ctx context.Context) gcsWriter {
	w := r.oh.NewWriter(ctx)
	w.ContentType = "application/zip"
	return w
}

func (r *realObjectHandle) Delete(ctx context.Context) error { return r.oh.Delete(ctx) }

func (r *realObjectHandle) Attrs(ctx context.Context) (*storage.ObjectAttrs, error) {
	return r.oh.Attrs(ctx)
}

// GCSConfig configures a GCSStore.
type GCSConfig struct {
	Bucket          string
	Project         string
	CredentialsFile string
	Endpoint        string
}

// GCSStore implements ObjectStore using Google Cloud Storage.
type GCSStore struct {
	client *storage.Client
	bucket gcsBucketHandle
	name   string
}

// NewGCSStore creates a GCS client and a store for the configured bucket.
func NewGCSStore(ctx context.Context, cfg GCSConfig) (*GCSStore, error) {
	if cfg.Bucket == "" {
		return nil, &ClientError{Op: "gcs init", Err: errors.New("bucket is required")}
	}
	opts := []option.ClientOption{}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithAuthCredentialsFile(option.ServiceAccount, cfg.CredentialsFile))
	}
	if cfg.Project != "" {
		opts = append(opts, option.WithQuotaProject(cfg.Project))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, &ClientError{Op: "gcs init", Err: fmt.Errorf("failed to create GCS client: %w", err)}
	}
	return &GCSStore{
		client: client,
		bucket: &realBucketHandle{client.Bucket(cfg.Bucket)},
		name:   cfg.Bucket,
	}, nil
}

// Close releases the underlying client.
func (g *GCSStore) Close() error {
	if g.client == nil {
		return nil
	}
	if err := g.client.Close(); err != nil {
		return fmt.Errorf("failed to close GCS client: %w", err)
	}
	g.client = nil
	return nil
}

// Put streams body into key. The writer commits on Close, so a failed
// copy cancels the writer's context first and the previous object stays.
func (g *GCSStore) Put(ctx context.Context, key string, body io.Reader) (ObjectInfo, error) {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := g.bucket.Object(key).NewWriter(wctx)
	n, err := io.Copy(w, body)
	if err != nil {
		cancel()
		_ = w.Close()
		return ObjectInfo{}, translateGCSError("put", key, err)
	}
	if err := w.Close(); err != nil {
		return ObjectInfo{}, translateGCSError("put", key, err)
	}
	info := ObjectInfo{Key: key, Size: n, Exists: true}
	if attrs := w.Attrs(); attrs != nil {
		info.Checksum = gcsChecksum(attrs)
		info.LastModified = attrs.Created
	}
	return info, nil
}

func (g *GCSStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := g.bucket.Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("get %q: %w", key, ErrNotFound)
		}
		return nil, translateGCSError("get", key, err)
	}
	return r, nil
}

func (g *GCSStore) Head(ctx context.Context, key string) (ObjectInfo, error) {
	attrs, err := g.bucket.Object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return ObjectInfo{Key: key}, nil
		}
		return ObjectInfo{}, translateGCSError("head", key, err)
	}
	return gcsObjectInfo(attrs), nil
}

func (g *GCSStore) List(ctx context.Context, prefix string, opts ListOptions) (ListPage, error) {
	it := g.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	pager := iterator.NewPager(it, int(pageSize(opts.MaxKeys)), opts.ContinuationToken)

	var attrs []*storage.ObjectAttrs
	next, err := pager.NextPage(&attrs)
	if err != nil {
		return ListPage{}, translateGCSError("list", prefix, err)
	}
	page := ListPage{
		Objects:               make([]ObjectInfo, 0, len(attrs)),
		NextContinuationToken: next,
	}
	for _, a := range attrs {
		page.Objects = append(page.Objects, gcsObjectInfo(a))
	}
	return page, nil
}

func (g *GCSStore) Delete(ctx context.Context, key string) error {
	if err := g.bucket.Object(key).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("delete %q: %w", key, ErrNotFound)
		}
		return translateGCSError("delete", key, err)
	}
	return nil
}

func gcsObjectInfo(attrs *storage.ObjectAttrs) ObjectInfo {
	return ObjectInfo{
		Key:          attrs.Name,
		Size:         attrs.Size,
		Checksum:     gcsChecksum(attrs),
		LastModified: attrs.Created,
		Exists:       true,
	}
}

func gcsChecksum(attrs *storage.ObjectAttrs) string {
	if len(attrs.MD5) > 0 {
		return fmt.Sprintf("%x", attrs.MD5)
	}
	return attrs.Etag
}

func translateGCSError(op, key string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return &ServerError{
			Op:         op,
			Key:        key,
			StatusCode: apiErr.Code,
			RequestID:  apiErr.Header.Get("X-Guploader-Uploadid"),
			Code:       gcsReason(apiErr),
			Message:    apiErr.Message,
			Header:     apiErr.Header,
			Err:        err,
		}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &ClientError{Op: op, Key: key, Err: err}
	}
	return fmt.Errorf("%s %q: %w", op, key, err)
}

func gcsReason(apiErr *googleapi.Error) string {
	if len(apiErr.Errors) > 0 {
		return apiErr.Errors[0].Reason
	}
	return ""
}
