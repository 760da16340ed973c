package artifact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/GoCodeAlone/artifactkit/store"
)

// classify turns a failure from the object store (or from the archive
// stream feeding it) into an *Error of one of the three fault kinds. It
// logs the failure and never drops it. Errors that already carry a kind
// and context cancellations pass through unchanged.
func classify(log *slog.Logger, op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}

	var se *store.ServerError
	if errors.As(err, &se) {
		log.Error("Object store rejected the request",
			"request_id", se.RequestID,
			"status_code", se.StatusCode,
			"code", se.Code,
			"message", se.Message,
		)
		return &Error{
			Kind:       ErrStoreServerFault,
			Op:         op,
			Err:        err,
			RequestID:  se.RequestID,
			StatusCode: se.StatusCode,
			Hint:       retryHint,
		}
	}

	var ce *store.ClientError
	if errors.As(err, &ce) {
		log.Error("Object store client error", "error", ce.Err)
		return &Error{Kind: ErrStoreClientFault, Op: op, Err: err, Hint: retryHint}
	}

	log.Error("Unexpected error", "error", err)
	return &Error{Kind: ErrUnclassifiedFault, Op: op, Err: err, Hint: retryHint}
}
