package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3API is the subset of the S3 client used by S3Store.
// *s3.Client implements this interface.
type S3API interface {
	manager.UploadAPIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config configures an S3Store.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string // custom endpoint for S3-compatible stores
	AccessKey string
	SecretKey string
	// PartSize is the multipart chunk size in bytes; zero uses the
	// upload manager's default.
	PartSize int64
}

// S3Store implements ObjectStore using an S3-compatible backend.
// Uploads go through the multipart upload manager so a stream of unknown
// length is sent in bounded parts.
type S3Store struct {
	client   S3API
	uploader *manager.Uploader
	bucket   string
}

// NewS3Store loads AWS configuration and creates an S3Store.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, &ClientError{Op: "s3 init", Err: errors.New("bucket is required")}
	}
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, &ClientError{Op: "s3 init", Err: fmt.Errorf("failed to load AWS config: %w", err)}
	}

	s3Opts := []func(*s3.Options){}
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return NewS3StoreWithClient(s3.NewFromConfig(awsCfg, s3Opts...), cfg.Bucket, cfg.PartSize), nil
}

// NewS3StoreWithClient creates an S3Store around an existing client.
func NewS3StoreWithClient(client S3API, bucket string, partSize int64) *S3Store {
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		if partSize > 0 {
			u.PartSize = partSize
		}
	})
	return &S3Store{client: client, uploader: uploader, bucket: bucket}
}

func (s *S3Store) Put(ctx context.Context, key string, body io.Reader) (ObjectInfo, error) {
	counter := &countingReader{r: body}
	out, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        counter,
		ContentType: aws.String("application/zip"),
	})
	if err != nil {
		return ObjectInfo{}, translateS3Error("put", key, err)
	}
	return ObjectInfo{
		Key:      key,
		Size:     counter.n,
		Checksum: trimETag(aws.ToString(out.ETag)),
		Exists:   true,
	}, nil
}

func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("get %q: %w", key, ErrNotFound)
		}
		return nil, translateS3Error("get", key, err)
	}
	return out.Body, nil
}

func (s *S3Store) Head(ctx context.Context, key string) (ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return ObjectInfo{Key: key}, nil
		}
		return ObjectInfo{}, translateS3Error("head", key, err)
	}
	info := ObjectInfo{
		Key:      key,
		Size:     aws.ToInt64(out.ContentLength),
		Checksum: trimETag(aws.ToString(out.ETag)),
		Exists:   true,
	}
	if out.LastModified != nil {
		info.LastModified = *out.LastModified
	}
	return info, nil
}

func (s *S3Store) List(ctx context.Context, prefix string, opts ListOptions) (ListPage, error) {
	in := &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(pageSize(opts.MaxKeys)),
	}
	if opts.ContinuationToken != "" {
		in.ContinuationToken = aws.String(opts.ContinuationToken)
	}
	out, err := s.client.ListObjectsV2(ctx, in)
	if err != nil {
		return ListPage{}, translateS3Error("list", prefix, err)
	}

	page := ListPage{Objects: make([]ObjectInfo, 0, len(out.Contents))}
	for _, obj := range out.Contents {
		info := ObjectInfo{
			Key:      aws.ToString(obj.Key),
			Size:     aws.ToInt64(obj.Size),
			Checksum: trimETag(aws.ToString(obj.ETag)),
			Exists:   true,
		}
		if obj.LastModified != nil {
			info.LastModified = *obj.LastModified
		}
		page.Objects = append(page.Objects, info)
	}
	if aws.ToBool(out.IsTruncated) {
		page.NextContinuationToken = aws.ToString(out.NextContinuationToken)
	}
	return page, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return translateS3Error("delete", key, err)
	}
	return nil
}

func isS3NotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == 404
}

// translateS3Error maps SDK failures onto ServerError (a response came
// back) or ClientError (the request never produced one).
func translateS3Error(op, key string, err error) error {
	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		se := &ServerError{
			Op:         op,
			Key:        key,
			StatusCode: re.HTTPStatusCode(),
			RequestID:  re.ServiceRequestID(),
			Err:        err,
		}
		if re.Response != nil && re.Response.Response != nil {
			se.Header = re.Response.Header
		}
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			se.Code = apiErr.ErrorCode()
			se.Message = apiErr.ErrorMessage()
		}
		return se
	}
	var opErr *smithy.OperationError
	if errors.As(err, &opErr) {
		return &ClientError{Op: op, Key: key, Err: err}
	}
	return fmt.Errorf("%s %q: %w", op, key, err)
}

func trimETag(etag string) string {
	return strings.Trim(etag, `"`)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
