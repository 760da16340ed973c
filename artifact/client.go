package artifact

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/GoCodeAlone/artifactkit/metrics"
	"github.com/GoCodeAlone/artifactkit/store"
)

// Client uploads, downloads and lists artifacts of one workflow run.
// A Client is safe for concurrent use; concurrent uploads of the same
// name race and the last one wins.
type Client struct {
	store     store.ObjectStore
	scope     Scope
	logger    *slog.Logger
	metrics   *metrics.Collector
	tracer    trace.Tracer
	workspace string
	pageSize  int32
	maxKeys   int
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records operation metrics into m.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Client) { c.metrics = m }
}

// WithTracer sets the tracer used for operation spans. The default comes
// from the global tracer provider.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithWorkspace sets the directory downloads go to when no path is given.
// The default is the working directory.
func WithWorkspace(dir string) Option {
	return func(c *Client) { c.workspace = dir }
}

// WithPageSize sets how many keys are requested per list call, capped at
// store.MaxListKeys.
func WithPageSize(n int32) Option {
	return func(c *Client) { c.pageSize = n }
}

// WithMaxKeys stops a listing after n keys have been scanned. Zero, the
// default, scans every page.
func WithMaxKeys(n int) Option {
	return func(c *Client) { c.maxKeys = n }
}

// NewClient returns a Client storing artifacts in s under scope. The
// scope is not checked here; an incomplete scope fails each operation that
// needs it with ErrConfig.
func NewClient(s store.ObjectStore, scope Scope, opts ...Option) *Client {
	c := &Client{
		store:    s,
		scope:    scope,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:   otel.GetTracerProvider().Tracer("artifactkit.artifact"),
		pageSize: store.MaxListKeys,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Scope returns the client's own scope.
func (c *Client) Scope() Scope { return c.scope }

// resolveScope picks the scope for a call: FindBy when given, else the
// client's own scope. Only the latter is a configuration problem when
// incomplete.
func (c *Client) resolveScope(op string, find FindOptions) (Scope, error) {
	if find.FindBy != nil {
		if err := find.FindBy.Validate(); err != nil {
			return Scope{}, err
		}
		return *find.FindBy, nil
	}
	if err := c.scope.Validate(); err != nil {
		return Scope{}, configError(op, err)
	}
	return c.scope, nil
}

func (c *Client) workspaceDir() (string, error) {
	if c.workspace != "" {
		return c.workspace, nil
	}
	return os.Getwd()
}

// operation carries the per-call logger, span and timing.
type operation struct {
	name    string
	log     *slog.Logger
	span    trace.Span
	metrics *metrics.Collector
	started time.Time
}

func (c *Client) start(ctx context.Context, op, name string) (context.Context, *operation) {
	id := uuid.NewString()
	ctx, span := c.tracer.Start(ctx, "artifact."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("artifact.operation", op),
			attribute.String("artifact.operation_id", id),
			attribute.String("artifact.name", name),
		),
	)
	log := c.logger.With("operation", op, "operation_id", id)
	if name != "" {
		log = log.With("artifact", name)
	}
	return ctx, &operation{
		name:    op,
		log:     log,
		span:    span,
		metrics: c.metrics,
		started: time.Now(),
	}
}

func (o *operation) setKey(key string) {
	o.log = o.log.With("key", key)
	o.span.SetAttributes(attribute.String("artifact.key", key))
}

func (o *operation) end(err error) {
	elapsed := time.Since(o.started)
	o.metrics.RecordOperation(o.name, err, elapsed)
	if err != nil {
		o.span.RecordError(err)
		o.span.SetStatus(codes.Error, err.Error())
	} else {
		o.span.SetStatus(codes.Ok, "")
		o.log.Debug("Operation completed", "duration", elapsed)
	}
	o.span.End()
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

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
