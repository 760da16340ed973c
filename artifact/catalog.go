package artifact

import (
	"cmp"
	"context"
	"errors"
	"slices"

	"github.com/GoCodeAlone/artifactkit/store"
)

// List returns the artifacts of the scope. Listing follows continuation
// tokens until the store reports the end of the prefix, so the result is
// not limited to one page; WithMaxKeys bounds it when needed.
func (c *Client) List(ctx context.Context, opts ListOptions) (resp *ListResponse, err error) {
	ctx, op := c.start(ctx, "list", "")
	defer func() { op.end(err) }()

	scope, err := c.resolveScope(op.name, opts.FindOptions)
	if err != nil {
		return nil, err
	}
	artifacts, err := c.scan(ctx, op, scope)
	if err != nil {
		return nil, err
	}
	if opts.Latest {
		artifacts = filterLatest(artifacts)
	}
	op.log.Info("Found artifacts", "count", len(artifacts), "scope", scope.String())
	return &ListResponse{Artifacts: artifacts}, nil
}

// Get returns the metadata of the artifact called name.
func (c *Client) Get(ctx context.Context, name string, opts FindOptions) (resp *GetResponse, err error) {
	ctx, op := c.start(ctx, "get", name)
	defer func() { op.end(err) }()

	if err = validateName(op.name, name); err != nil {
		return nil, err
	}
	scope, err := c.resolveScope(op.name, opts)
	if err != nil {
		return nil, err
	}
	a, err := c.lookup(ctx, op, scope, name)
	if err != nil {
		return nil, err
	}
	return &GetResponse{Artifact: a}, nil
}

// Delete removes the artifact called name.
func (c *Client) Delete(ctx context.Context, name string, opts FindOptions) (resp *DeleteResponse, err error) {
	ctx, op := c.start(ctx, "delete", name)
	defer func() { op.end(err) }()

	if err = validateName(op.name, name); err != nil {
		return nil, err
	}
	scope, err := c.resolveScope(op.name, opts)
	if err != nil {
		return nil, err
	}
	a, err := c.lookup(ctx, op, scope, name)
	if err != nil {
		return nil, err
	}
	if err = c.store.Delete(ctx, a.Key); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound(op.name, name, nil)
		}
		return nil, classify(op.log, op.name, err)
	}
	op.log.Info("Artifact deleted")
	return &DeleteResponse{ID: a.ID, Key: a.Key}, nil
}

// lookup heads the key of name in scope. A missing object is
// ErrArtifactNotFound; a failed lookup is a store fault.
func (c *Client) lookup(ctx context.Context, op *operation, scope Scope, name string) (Artifact, error) {
	key, err := scope.Key(name)
	if err != nil {
		return Artifact{}, err
	}
	op.setKey(key)

	info, err := c.store.Head(ctx, key)
	if err != nil {
		return Artifact{}, classify(op.log, op.name, err)
	}
	if !info.Exists {
		return Artifact{}, notFound(op.name, name, nil)
	}
	a := artifactFromObject(name, info)
	a.Key = key
	return a, nil
}

// scan lists every archive stored directly under the scope prefix, in
// store order. The prefix carries a trailing separator so run 1 never
// matches keys of run 10.
func (c *Client) scan(ctx context.Context, op *operation, scope Scope) ([]Artifact, error) {
	prefix, err := scope.Prefix()
	if err != nil {
		return nil, err
	}

	artifacts := make([]Artifact, 0)
	var (
		token   string
		scanned int
	)
	for {
		page, err := c.store.List(ctx, prefix+"/", store.ListOptions{
			MaxKeys:           c.pageSize,
			ContinuationToken: token,
		})
		if err != nil {
			return nil, classify(op.log, op.name, err)
		}
		scanned += len(page.Objects)
		for _, obj := range page.Objects {
			name, ok := nameFromKey(prefix, obj.Key)
			if !ok {
				op.log.Debug("Skipping key that is not an artifact", "key", obj.Key)
				continue
			}
			artifacts = append(artifacts, artifactFromObject(name, obj))
		}
		if page.NextContinuationToken == "" {
			break
		}
		if c.maxKeys > 0 && scanned >= c.maxKeys {
			op.log.Warn("Listing stopped at key limit", "max_keys", c.maxKeys)
			break
		}
		token = page.NextContinuationToken
	}
	return artifacts, nil
}

func artifactFromObject(name string, obj store.ObjectInfo) Artifact {
	a := Artifact{
		Name:   name,
		Size:   obj.Size,
		Digest: obj.Checksum,
		Key:    obj.Key,
	}
	if !obj.LastModified.IsZero() {
		t := obj.LastModified.UTC()
		a.CreatedAt = &t
	}
	return a
}

// sortNewestFirst orders artifacts by creation time, newest first, with
// untimed artifacts last, then by ID descending. The sort is stable, so
// store order breaks the remaining ties.
func sortNewestFirst(artifacts []Artifact) {
	slices.SortStableFunc(artifacts, func(a, b Artifact) int {
		switch {
		case a.CreatedAt != nil && b.CreatedAt == nil:
			return -1
		case a.CreatedAt == nil && b.CreatedAt != nil:
			return 1
		case a.CreatedAt != nil && b.CreatedAt != nil:
			if c := b.CreatedAt.Compare(*a.CreatedAt); c != 0 {
				return c
			}
		}
		return cmp.Compare(b.ID, a.ID)
	})
}

// filterLatest keeps the first artifact of each name after sorting newest
// first. The result stays in that order and contains each name once.
func filterLatest(artifacts []Artifact) []Artifact {
	sorted := slices.Clone(artifacts)
	sortNewestFirst(sorted)

	latest := make([]Artifact, 0, len(sorted))
	seen := make(map[string]struct{}, len(sorted))
	for _, a := range sorted {
		if _, ok := seen[a.Name]; ok {
			continue
		}
		seen[a.Name] = struct{}{}
		latest = append(latest, a)
	}
	return latest
}
