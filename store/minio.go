package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOConfig configures a MinIOStore.
type MinIOConfig struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinIOStore implements ObjectStore on any S3-compatible endpoint through
// the MinIO client. Streams of unknown size are uploaded in parts.
type MinIOStore struct {
	client *minio.Client
	bucket string
}

// NewMinIOStore creates a MinIOStore. No network call is made.
func NewMinIOStore(cfg MinIOConfig) (*MinIOStore, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, &ClientError{Op: "minio init", Err: errors.New("endpoint is required")}
	}
	// minio.New wants host[:port]; tolerate a URL and derive SSL from it.
	useSSL := cfg.UseSSL
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, &ClientError{Op: "minio init", Err: errors.New("bucket is required")}
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, &ClientError{Op: "minio init", Err: fmt.Errorf("init s3 client: %w", err)}
	}
	return &MinIOStore{client: client, bucket: bucket}, nil
}

func (s *MinIOStore) Put(ctx context.Context, key string, body io.Reader) (ObjectInfo, error) {
	info, err := s.client.PutObject(ctx, s.bucket, key, body, -1, minio.PutObjectOptions{
		ContentType: "application/zip",
	})
	if err != nil {
		return ObjectInfo{}, translateMinIOError("put", key, err)
	}
	return ObjectInfo{
		Key:          key,
		Size:         info.Size,
		Checksum:     trimETag(info.ETag),
		LastModified: info.LastModified,
		Exists:       true,
	}, nil
}

func (s *MinIOStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	// GetObject is lazy; stat first so a missing key fails here rather
	// than on the first Read.
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		if isMinIONotFound(err) {
			return nil, fmt.Errorf("get %q: %w", key, ErrNotFound)
		}
		return nil, translateMinIOError("get", key, err)
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translateMinIOError("get", key, err)
	}
	return obj, nil
}

func (s *MinIOStore) Head(ctx context.Context, key string) (ObjectInfo, error) {
	stat, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isMinIONotFound(err) {
			return ObjectInfo{Key: key}, nil
		}
		return ObjectInfo{}, translateMinIOError("head", key, err)
	}
	return ObjectInfo{
		Key:          key,
		Size:         stat.Size,
		Checksum:     trimETag(stat.ETag),
		LastModified: stat.LastModified,
		Exists:       true,
	}, nil
}

func (s *MinIOStore) List(ctx context.Context, prefix string, opts ListOptions) (ListPage, error) {
	limit := int(pageSize(opts.MaxKeys))
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	objects := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:     prefix,
		Recursive:  true,
		StartAfter: opts.ContinuationToken,
		MaxKeys:    limit,
	})

	var page ListPage
	for obj := range objects {
		if obj.Err != nil {
			return ListPage{}, translateMinIOError("list", prefix, obj.Err)
		}
		if len(page.Objects) == limit {
			// One more object exists beyond this page.
			page.NextContinuationToken = page.Objects[limit-1].Key
			break
		}
		page.Objects = append(page.Objects, ObjectInfo{
			Key:          obj.Key,
			Size:         obj.Size,
			Checksum:     trimETag(obj.ETag),
			LastModified: obj.LastModified,
			Exists:       true,
		})
	}
	return page, nil
}

func (s *MinIOStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return translateMinIOError("delete", key, err)
	}
	return nil
}

func isMinIONotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.StatusCode == http.StatusNotFound || resp.Code == "NoSuchKey"
}

func translateMinIOError(op, key string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode != 0 {
		return &ServerError{
			Op:         op,
			Key:        key,
			StatusCode: resp.StatusCode,
			RequestID:  resp.RequestID,
			Code:       resp.Code,
			Message:    resp.Message,
			Err:        err,
		}
	}
	var urlErr *url.Error
	if resp.Code != "" || errors.As(err, &urlErr) {
		return &ClientError{Op: op, Key: key, Err: err}
	}
	return fmt.Errorf("%s %q: %w", op, key, err)
}
