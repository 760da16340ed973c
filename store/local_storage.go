package store

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

const localTempPrefix = ".upload-"

// LocalStorage implements ObjectStore backed by the local filesystem.
// Object keys map to files below root; "/" in a key becomes a directory.
type LocalStorage struct {
	root string
}

// NewLocalStorage creates a new LocalStorage rooted at the given directory.
// The directory is created if it does not exist.
func NewLocalStorage(root string) (*LocalStorage, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create root directory: %w", err)
	}
	return &LocalStorage{root: abs}, nil
}

// Root returns the absolute root path.
func (l *LocalStorage) Root() string {
	return l.root
}

// resolve converts an object key to an absolute filesystem path,
// ensuring the result stays within the root directory.
func (l *LocalStorage) resolve(key string) (string, error) {
	if key == "" || !filepath.IsLocal(filepath.FromSlash(key)) {
		return "", &ClientError{Op: "resolve", Key: key, Err: errors.New("key escapes storage root")}
	}
	return filepath.Join(l.root, filepath.FromSlash(key)), nil
}

func (l *LocalStorage) Put(ctx context.Context, key string, body io.Reader) (ObjectInfo, error) {
	abs, err := l.resolve(key)
	if err != nil {
		return ObjectInfo{}, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return ObjectInfo{}, fmt.Errorf("create parent directories: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(abs), localTempPrefix+"*")
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	hasher := md5.New()
	size, err := io.Copy(io.MultiWriter(tmp, hasher), body)
	if err != nil {
		_ = tmp.Close()
		return ObjectInfo{}, fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return ObjectInfo{}, fmt.Errorf("close file: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, err
	}
	if err := os.Rename(tmp.Name(), abs); err != nil {
		return ObjectInfo{}, fmt.Errorf("rename file: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("stat file: %w", err)
	}
	return ObjectInfo{
		Key:          key,
		Size:         size,
		Checksum:     hex.EncodeToString(hasher.Sum(nil)),
		LastModified: info.ModTime(),
		Exists:       true,
	}, nil
}

func (l *LocalStorage) Get(_ context.Context, key string) (io.ReadCloser, error) {
	abs, err := l.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("open %q: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

func (l *LocalStorage) Head(_ context.Context, key string) (ObjectInfo, error) {
	abs, err := l.resolve(key)
	if err != nil {
		return ObjectInfo{}, err
	}
	f, err := os.Open(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ObjectInfo{Key: key}, nil
		}
		return ObjectInfo{}, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return ObjectInfo{Key: key}, nil
	}
	hasher := md5.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return ObjectInfo{}, fmt.Errorf("checksum file: %w", err)
	}
	return ObjectInfo{
		Key:          key,
		Size:         info.Size(),
		Checksum:     hex.EncodeToString(hasher.Sum(nil)),
		LastModified: info.ModTime(),
		Exists:       true,
	}, nil
}

func (l *LocalStorage) List(_ context.Context, prefix string, opts ListOptions) (ListPage, error) {
	// Walk from the deepest directory the prefix fully names.
	start := l.root
	if i := strings.LastIndex(prefix, "/"); i > 0 {
		dir, err := l.resolve(prefix[:i])
		if err != nil {
			return ListPage{}, err
		}
		start = dir
	}

	var objects []ObjectInfo
	err := filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), localTempPrefix) {
			return nil
		}
		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) || key <= opts.ContinuationToken {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		objects = append(objects, ObjectInfo{
			Key:          path.Clean(key),
			Size:         info.Size(),
			LastModified: info.ModTime(),
			Exists:       true,
		})
		return nil
	})
	if err != nil {
		return ListPage{}, fmt.Errorf("walk directory: %w", err)
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })

	var page ListPage
	limit := int(pageSize(opts.MaxKeys))
	if len(objects) > limit {
		objects = objects[:limit]
		page.NextContinuationToken = objects[limit-1].Key
	}
	page.Objects = objects
	return page, nil
}

func (l *LocalStorage) Delete(_ context.Context, key string) error {
	abs, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("delete %q: %w", key, ErrNotFound)
		}
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}
