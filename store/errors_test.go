package store

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/minio/minio-go/v7"
	"google.golang.org/api/googleapi"
)

func TestTranslateS3Error(t *testing.T) {
	header := http.Header{}
	header.Set("X-Amz-Request-Id", "req-123")
	respErr := &smithy.OperationError{
		ServiceID:     "S3",
		OperationName: "PutObject",
		Err: &awshttp.ResponseError{
			ResponseError: &smithyhttp.ResponseError{
				Response: &smithyhttp.Response{Response: &http.Response{StatusCode: 503, Header: header}},
				Err:      &smithy.GenericAPIError{Code: "SlowDown", Message: "Please reduce your request rate."},
			},
			RequestID: "req-123",
		},
	}

	err := translateS3Error("put", "artifacts/r/1/a.zip", respErr)
	var se *ServerError
	if !errors.As(err, &se) {
		t.Fatalf("expected ServerError, got %T: %v", err, err)
	}
	if se.StatusCode != 503 || se.RequestID != "req-123" || se.Code != "SlowDown" {
		t.Errorf("unexpected server error fields: %+v", se)
	}

	clientErr := &smithy.OperationError{ServiceID: "S3", OperationName: "PutObject", Err: errors.New("failed to retrieve credentials")}
	err = translateS3Error("put", "k", clientErr)
	var ce *ClientError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ClientError, got %T: %v", err, err)
	}

	plain := errors.New("something odd")
	err = translateS3Error("put", "k", plain)
	if errors.As(err, &ce) || errors.As(err, &se) {
		t.Fatalf("expected unclassified error, got %T", err)
	}
	if !errors.Is(err, plain) {
		t.Fatal("unclassified error must wrap the original")
	}
}

func TestTranslateMinIOError(t *testing.T) {
	err := translateMinIOError("list", "artifacts/", minio.ErrorResponse{
		StatusCode: 403,
		Code:       "AccessDenied",
		Message:    "Access Denied.",
		RequestID:  "minio-req",
	})
	var se *ServerError
	if !errors.As(err, &se) {
		t.Fatalf("expected ServerError, got %T", err)
	}
	if se.StatusCode != 403 || se.RequestID != "minio-req" {
		t.Errorf("unexpected server error fields: %+v", se)
	}

	netErr := &url.Error{Op: "Put", URL: "http://minio:9000", Err: errors.New("connection refused")}
	err = translateMinIOError("put", "k", netErr)
	var ce *ClientError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ClientError, got %T", err)
	}
}

func TestTranslateGCSError(t *testing.T) {
	header := http.Header{}
	header.Set("X-Guploader-Uploadid", "upload-1")
	err := translateGCSError("head", "k", &googleapi.Error{
		Code:    500,
		Message: "backend error",
		Header:  header,
		Errors:  []googleapi.ErrorItem{{Reason: "backendError"}},
	})
	var se *ServerError
	if !errors.As(err, &se) {
		t.Fatalf("expected ServerError, got %T", err)
	}
	if se.StatusCode != 500 || se.RequestID != "upload-1" || se.Code != "backendError" {
		t.Errorf("unexpected server error fields: %+v", se)
	}
}

func TestTranslateAzureError(t *testing.T) {
	header := http.Header{}
	header.Set("x-ms-request-id", "azure-req")
	err := translateAzureError("get", "k", &azcore.ResponseError{
		ErrorCode:   "ServerBusy",
		StatusCode:  503,
		RawResponse: &http.Response{StatusCode: 503, Header: header},
	})
	var se *ServerError
	if !errors.As(err, &se) {
		t.Fatalf("expected ServerError, got %T", err)
	}
	if se.RequestID != "azure-req" || se.Code != "ServerBusy" {
		t.Errorf("unexpected server error fields: %+v", se)
	}
}

func TestServerErrorMessage(t *testing.T) {
	se := &ServerError{Op: "put", Key: "k", StatusCode: 500, RequestID: "r1", Code: "InternalError", Message: "boom"}
	msg := se.Error()
	for _, want := range []string{"put", "500", "r1", "InternalError", "boom"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Config{Backend: "memory"})
	if err != nil {
		t.Fatalf("Open memory: %v", err)
	}
	if _, ok := s.(*MemoryStore); !ok {
		t.Fatalf("expected *MemoryStore, got %T", s)
	}

	s, err = Open(ctx, Config{Backend: "local", LocalRoot: t.TempDir()})
	if err != nil {
		t.Fatalf("Open local: %v", err)
	}
	if _, ok := s.(*LocalStorage); !ok {
		t.Fatalf("expected *LocalStorage, got %T", s)
	}

	if _, err := Open(ctx, Config{Backend: "s3"}); err == nil {
		t.Fatal("expected error for s3 without bucket")
	}
	var ce *ClientError
	if _, err := Open(ctx, Config{Backend: "minio", Bucket: "b"}); !errors.As(err, &ce) {
		t.Fatalf("expected ClientError for minio without endpoint, got %v", err)
	}
	if _, err := Open(ctx, Config{Backend: "ftp", Bucket: "b"}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}
