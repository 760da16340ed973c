package store

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for store operations.
var (
	ErrNotFound    = errors.New("object not found")
	ErrUnsupported = errors.New("unsupported storage backend")
)

// ClientError is a fault raised on the caller's side before or without a
// response from the store: malformed requests, missing credentials,
// unreachable endpoints.
type ClientError struct {
	Op  string
	Key string
	Err error
}

func (e *ClientError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s: client error: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %q: client error: %v", e.Op, e.Key, e.Err)
}

func (e *ClientError) Unwrap() error { return e.Err }

// ServerError is a rejection or failure reported by the store itself.
type ServerError struct {
	Op         string
	Key        string
	StatusCode int
	RequestID  string
	Code       string
	Message    string
	Header     http.Header
	Err        error
}

func (e *ServerError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("%s %q: server error: status %d, code %q, request id %q: %s",
		e.Op, e.Key, e.StatusCode, e.Code, e.RequestID, msg)
}

func (e *ServerError) Unwrap() error { return e.Err }
