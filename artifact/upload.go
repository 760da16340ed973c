package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/GoCodeAlone/artifactkit/archive"
	"github.com/GoCodeAlone/artifactkit/metrics"
)

// Upload archives files, all of which must live under rootDirectory, and
// stores the archive as the artifact called name. The archive is streamed
// to the store as it is produced; it is never written to disk or held in
// memory as a whole. An existing artifact with the same name is replaced
// unless opts.FailIfExists is set.
func (c *Client) Upload(ctx context.Context, name string, files []string, rootDirectory string, opts UploadOptions) (resp *UploadResponse, err error) {
	ctx, op := c.start(ctx, "upload", name)
	defer func() { op.end(err) }()

	if err = validateName(op.name, name); err != nil {
		return nil, err
	}
	level := archive.DefaultCompressionLevel
	if opts.CompressionLevel != nil {
		level = *opts.CompressionLevel
	}
	if err = archive.ValidateCompressionLevel(level); err != nil {
		return nil, invalidArgument(op.name, err)
	}
	if err = archive.ValidateRootDirectory(rootDirectory); err != nil {
		return nil, invalidArgument(op.name, err)
	}
	entries, err := archive.BuildSpecification(files, rootDirectory)
	if err != nil {
		return nil, invalidArgument(op.name, err)
	}
	if len(entries) == 0 {
		return nil, &Error{
			Kind: ErrNoFilesFound,
			Op:   op.name,
			Err:  fmt.Errorf("there are no files to upload for artifact %q", name),
		}
	}

	scope, err := c.resolveScope(op.name, FindOptions{})
	if err != nil {
		return nil, err
	}
	key, err := scope.Key(name)
	if err != nil {
		return nil, err
	}
	op.setKey(key)

	if opts.FailIfExists {
		existing, herr := c.store.Head(ctx, key)
		if herr != nil {
			return nil, classify(op.log, op.name, herr)
		}
		if existing.Exists {
			return nil, &Error{Kind: ErrAlreadyExists, Op: op.name, Err: fmt.Errorf("artifact %q already exists at %s", name, key)}
		}
	}

	op.log.Info("Uploading artifact", "entries", len(entries), "compression_level", level)
	written, err := c.stream(ctx, op, key, entries, level)
	if err != nil {
		return nil, err
	}
	c.metrics.RecordTransfer(metrics.DirectionUpload, written)

	op.log.Info("Finalizing artifact upload")
	info, err := c.store.Head(ctx, key)
	if err != nil {
		return nil, classify(op.log, op.name, err)
	}
	if !info.Exists {
		return nil, classify(op.log, op.name, fmt.Errorf("object %s is missing after upload", key))
	}

	op.log.Info("Artifact uploaded successfully", "size", info.Size, "digest", info.Checksum)
	return &UploadResponse{ID: 0, Size: info.Size, Digest: info.Checksum, Key: key}, nil
}

// stream runs the archive writer and the store upload concurrently,
// joined by a pipe. The writer blocks whenever the upload falls behind.
// It returns the number of archive bytes produced.
func (c *Client) stream(ctx context.Context, op *operation, key string, entries []archive.Entry, level int) (int64, error) {
	pr, pw := io.Pipe()
	counter := &countingWriter{w: pw}

	var writeErr, putErr error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		writeErr = archive.Write(gctx, counter, entries, level)
		pw.CloseWithError(writeErr)
		return writeErr
	})
	g.Go(func() error {
		_, putErr = c.store.Put(gctx, key, pr)
		pr.CloseWithError(putErr)
		return putErr
	})
	_ = g.Wait()

	// A failing side cancels the other, whose error is then only a
	// consequence.
	followed := func(err, cause error) bool {
		return errors.Is(err, cause) || (ctx.Err() == nil && errors.Is(err, context.Canceled))
	}
	switch {
	case putErr != nil && (writeErr == nil || followed(writeErr, putErr)):
		return 0, classify(op.log, op.name, putErr)
	case writeErr != nil:
		return 0, classify(op.log, op.name, fmt.Errorf("assemble archive: %w", writeErr))
	}
	return counter.n, nil
}
