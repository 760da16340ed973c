package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/GoCodeAlone/artifactkit/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClassify(t *testing.T) {
	log := discardLogger()
	tests := []struct {
		name string
		err  error
		kind error
	}{
		{name: "server", err: fmt.Errorf("put: %w", &store.ServerError{StatusCode: 500, RequestID: "r"}), kind: ErrStoreServerFault},
		{name: "client", err: &store.ClientError{Op: "get", Err: errors.New("bad credentials")}, kind: ErrStoreClientFault},
		{name: "other", err: errors.New("something odd"), kind: ErrUnclassifiedFault},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(log, "op", tt.err)
			if !errors.Is(got, tt.kind) {
				t.Fatalf("classify(%v) = %v, want kind %v", tt.err, got, tt.kind)
			}
			if !errors.Is(got, tt.err) {
				t.Error("classified error must wrap the original")
			}
			if !strings.Contains(got.Error(), retryHint) {
				t.Errorf("missing remediation hint in %q", got.Error())
			}
		})
	}
}

func TestClassifyPassThrough(t *testing.T) {
	log := discardLogger()

	if classify(log, "op", nil) != nil {
		t.Fatal("nil must stay nil")
	}

	typed := notFound("get", "x", nil)
	if got := classify(log, "op", typed); got != typed {
		t.Fatalf("already classified error was rewrapped: %v", got)
	}

	for _, cause := range []error{context.Canceled, context.DeadlineExceeded} {
		got := classify(log, "op", fmt.Errorf("read: %w", cause))
		if !errors.Is(got, cause) {
			t.Fatalf("expected %v to pass through, got %v", cause, got)
		}
		var ae *Error
		if errors.As(got, &ae) {
			t.Fatalf("context error should not carry a kind: %v", got)
		}
	}
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Kind: ErrArtifactNotFound, Op: "download", Err: errors.New(`no artifact named "x"`), Hint: notFoundHint}
	want := "download: artifact not found: no artifact named \"x\"\n" + notFoundHint
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if errors.Is(err, ErrStoreServerFault) {
		t.Error("error must match only its own kind")
	}
}
