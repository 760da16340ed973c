package store

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// AzureConfig configures an AzureStore. Account and key use the shared
// key credential; Container plays the role of a bucket.
type AzureConfig struct {
	Account    string
	AccountKey string
	Container  string
	// Endpoint overrides https://<account>.blob.core.windows.net/.
	Endpoint string
}

// AzureStore implements ObjectStore on Azure Blob Storage.
type AzureStore struct {
	client    *azblob.Client
	container string
}

// NewAzureStore creates an AzureStore. No network call is made.
func NewAzureStore(cfg AzureConfig) (*AzureStore, error) {
	if cfg.Container == "" {
		return nil, &ClientError{Op: "azure init", Err: errors.New("container is required")}
	}
	if cfg.Account == "" || cfg.AccountKey == "" {
		return nil, &ClientError{Op: "azure init", Err: errors.New("account name and key are required")}
	}
	cred, err := azblob.NewSharedKeyCredential(cfg.Account, cfg.AccountKey)
	if err != nil {
		return nil, &ClientError{Op: "azure init", Err: fmt.Errorf("shared key credential: %w", err)}
	}
	serviceURL := cfg.Endpoint
	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.Account)
	}
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, &ClientError{Op: "azure init", Err: fmt.Errorf("create blob client: %w", err)}
	}
	return &AzureStore{client: client, container: cfg.Container}, nil
}

func (a *AzureStore) Put(ctx context.Context, key string, body io.Reader) (ObjectInfo, error) {
	counter := &countingReader{r: body}
	resp, err := a.client.UploadStream(ctx, a.container, key, counter, nil)
	if err != nil {
		return ObjectInfo{}, translateAzureError("put", key, err)
	}
	info := ObjectInfo{Key: key, Size: counter.n, Exists: true}
	if resp.ETag != nil {
		info.Checksum = trimETag(string(*resp.ETag))
	}
	if resp.LastModified != nil {
		info.LastModified = *resp.LastModified
	}
	return info, nil
}

func (a *AzureStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := a.client.DownloadStream(ctx, a.container, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, fmt.Errorf("get %q: %w", key, ErrNotFound)
		}
		return nil, translateAzureError("get", key, err)
	}
	return resp.Body, nil
}

func (a *AzureStore) Head(ctx context.Context, key string) (ObjectInfo, error) {
	blob := a.client.ServiceClient().NewContainerClient(a.container).NewBlobClient(key)
	props, err := blob.GetProperties(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) || isAzureStatus(err, 404) {
			return ObjectInfo{Key: key}, nil
		}
		return ObjectInfo{}, translateAzureError("head", key, err)
	}
	info := ObjectInfo{Key: key, Exists: true}
	if props.ContentLength != nil {
		info.Size = *props.ContentLength
	}
	switch {
	case len(props.ContentMD5) > 0:
		info.Checksum = hex.EncodeToString(props.ContentMD5)
	case props.ETag != nil:
		info.Checksum = trimETag(string(*props.ETag))
	}
	if props.LastModified != nil {
		info.LastModified = *props.LastModified
	}
	return info, nil
}

func (a *AzureStore) List(ctx context.Context, prefix string, opts ListOptions) (ListPage, error) {
	listOpts := &azblob.ListBlobsFlatOptions{
		Prefix:     &prefix,
		MaxResults: ptr(pageSize(opts.MaxKeys)),
	}
	if opts.ContinuationToken != "" {
		listOpts.Marker = &opts.ContinuationToken
	}
	pager := a.client.NewListBlobsFlatPager(a.container, listOpts)

	var page ListPage
	if !pager.More() {
		return page, nil
	}
	resp, err := pager.NextPage(ctx)
	if err != nil {
		return ListPage{}, translateAzureError("list", prefix, err)
	}
	if resp.Segment != nil {
		for _, item := range resp.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			info := ObjectInfo{Key: *item.Name, Exists: true}
			if p := item.Properties; p != nil {
				if p.ContentLength != nil {
					info.Size = *p.ContentLength
				}
				if len(p.ContentMD5) > 0 {
					info.Checksum = hex.EncodeToString(p.ContentMD5)
				}
				if p.CreationTime != nil {
					info.LastModified = *p.CreationTime
				} else if p.LastModified != nil {
					info.LastModified = *p.LastModified
				}
			}
			page.Objects = append(page.Objects, info)
		}
	}
	if resp.NextMarker != nil {
		page.NextContinuationToken = *resp.NextMarker
	}
	return page, nil
}

func (a *AzureStore) Delete(ctx context.Context, key string) error {
	if _, err := a.client.DeleteBlob(ctx, a.container, key, nil); err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return fmt.Errorf("delete %q: %w", key, ErrNotFound)
		}
		return translateAzureError("delete", key, err)
	}
	return nil
}

func isAzureStatus(err error, status int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == status
}

func translateAzureError(op, key string, err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		se := &ServerError{
			Op:         op,
			Key:        key,
			StatusCode: respErr.StatusCode,
			Code:       respErr.ErrorCode,
			Err:        err,
		}
		if respErr.RawResponse != nil {
			se.Header = respErr.RawResponse.Header
			se.RequestID = respErr.RawResponse.Header.Get("x-ms-request-id")
		}
		return se
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &ClientError{Op: op, Key: key, Err: err}
	}
	return fmt.Errorf("%s %q: %w", op, key, err)
}

func ptr[T any](v T) *T { return &v }
