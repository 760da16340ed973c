package artifact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/GoCodeAlone/artifactkit/archive"
	"github.com/GoCodeAlone/artifactkit/metrics"
	"github.com/GoCodeAlone/artifactkit/store"
)

// Download extracts an artifact into opts.Path, or into the workspace when
// no path is given. With a name, that artifact is fetched. Without one the
// scope is listed and, when several artifacts exist, the newest is taken
// after a warning. The object body streams straight into the extractor;
// no copy of the archive is kept.
func (c *Client) Download(ctx context.Context, name string, opts DownloadOptions) (resp *DownloadResponse, err error) {
	ctx, op := c.start(ctx, "download", name)
	defer func() { op.end(err) }()

	if name != "" {
		if err = validateName(op.name, name); err != nil {
			return nil, err
		}
	}
	scope, err := c.resolveScope(op.name, opts.FindOptions)
	if err != nil {
		return nil, err
	}

	dest := opts.Path
	if dest == "" {
		if dest, err = c.workspaceDir(); err != nil {
			return nil, configError(op.name, fmt.Errorf("resolve workspace: %w", err))
		}
	}
	if err = resolveOrCreateDirectory(op.log, dest); err != nil {
		return nil, invalidArgument(op.name, err)
	}

	var candidates []Artifact
	if name != "" {
		a, lerr := c.lookup(ctx, op, scope, name)
		if lerr != nil {
			return nil, lerr
		}
		candidates = []Artifact{a}
	} else {
		if candidates, err = c.scan(ctx, op, scope); err != nil {
			return nil, err
		}
		sortNewestFirst(candidates)
	}
	if len(candidates) == 0 {
		return nil, notFound(op.name, name, fmt.Errorf("no artifacts found in %s", scope))
	}
	if len(candidates) > 1 {
		op.log.Warn("Multiple artifacts found, defaulting to first.", "count", len(candidates), "selected", candidates[0].Name)
	}
	target := candidates[0]
	if name == "" {
		op.setKey(target.Key)
	}

	op.log.Info("Starting download of artifact", "path", dest)
	body, err := c.store.Get(ctx, target.Key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound(op.name, target.Name, nil)
		}
		return nil, classify(op.log, op.name, err)
	}
	defer body.Close()

	counted := &countingReader{r: body}
	stats, err := archive.Extract(ctx, counted, dest)
	c.metrics.RecordTransfer(metrics.DirectionDownload, counted.n)
	if err != nil {
		return nil, classify(op.log, op.name, fmt.Errorf("extract artifact %q: %w", target.Name, err))
	}

	op.log.Info("Artifact download completed successfully", "files", stats.Files, "bytes", stats.Bytes)
	return &DownloadResponse{
		DownloadPath: dest,
		Artifact:     target,
		Files:        stats.Files,
		Bytes:        stats.Bytes,
	}, nil
}

// resolveOrCreateDirectory makes sure dir exists. An existing directory is
// reused as is.
func resolveOrCreateDirectory(log *slog.Logger, dir string) error {
	info, err := os.Stat(dir)
	switch {
	case err == nil && info.IsDir():
		log.Debug("Artifact destination folder already exists", "path", dir)
		return nil
	case err == nil:
		return fmt.Errorf("destination %s is not a directory", dir)
	case !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("stat destination: %w", err)
	}
	log.Debug("Artifact destination folder does not exist, creating", "path", dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	return nil
}
