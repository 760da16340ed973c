package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Backend names accepted by Open.
const (
	BackendS3     = "s3"
	BackendMinIO  = "minio"
	BackendGCS    = "gcs"
	BackendAzure  = "azure"
	BackendLocal  = "local"
	BackendMemory = "memory"
)

// Config selects and configures an ObjectStore backend. Bucket is the
// bucket (S3, MinIO, GCS) or container (Azure). AccessKey/SecretKey are
// the access key pair (S3, MinIO) or account name/key (Azure).
type Config struct {
	Backend         string
	Bucket          string
	Endpoint        string
	Region          string
	AccessKey       string
	SecretKey       string
	UseSSL          bool
	LocalRoot       string
	CredentialsFile string
	Project         string
}

// Open creates the ObjectStore named by cfg.Backend.
func Open(ctx context.Context, cfg Config) (ObjectStore, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" {
		backend = BackendS3
	}
	if backend != BackendLocal && backend != BackendMemory && cfg.Bucket == "" {
		return nil, &ClientError{Op: "open " + backend, Err: errors.New("bucket name is not configured")}
	}

	switch backend {
	case BackendS3:
		return NewS3Store(ctx, S3Config{
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
		})
	case BackendMinIO:
		return NewMinIOStore(MinIOConfig{
			Endpoint:  cfg.Endpoint,
			Region:    cfg.Region,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Bucket:    cfg.Bucket,
			UseSSL:    cfg.UseSSL,
		})
	case BackendGCS:
		return NewGCSStore(ctx, GCSConfig{
			Bucket:          cfg.Bucket,
			Project:         cfg.Project,
			CredentialsFile: cfg.CredentialsFile,
			Endpoint:        cfg.Endpoint,
		})
	case BackendAzure:
		return NewAzureStore(AzureConfig{
			Account:    cfg.AccessKey,
			AccountKey: cfg.SecretKey,
			Container:  cfg.Bucket,
			Endpoint:   cfg.Endpoint,
		})
	case BackendLocal:
		if cfg.LocalRoot == "" {
			return nil, &ClientError{Op: "open local", Err: errors.New("local storage root is not configured")}
		}
		return NewLocalStorage(cfg.LocalRoot)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, cfg.Backend)
	}
}
