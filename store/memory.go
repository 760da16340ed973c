package store

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryObject struct {
	data     []byte
	checksum string
	modified time.Time
}

// MemoryStore is an in-process ObjectStore. It backs the "memory" backend
// and doubles as the gateway in tests: it counts calls per operation and
// can be told to fail an operation.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	calls   map[string]int
	fail    map[string]error
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]memoryObject),
		calls:   make(map[string]int),
		fail:    make(map[string]error),
		now:     time.Now,
	}
}

// SetClock replaces the timestamp source used for LastModified.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// FailOn makes every subsequent call to op ("put", "get", "head", "list",
// "delete") return err. A nil err clears the failure.
func (m *MemoryStore) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fail, op)
		return
	}
	m.fail[op] = err
}

// Calls reports how many times op has been invoked.
func (m *MemoryStore) Calls(op string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[op]
}

// Keys returns every stored key in lexicographic order.
func (m *MemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *MemoryStore) enter(op string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[op]++
	return m.fail[op]
}

func (m *MemoryStore) Put(ctx context.Context, key string, body io.Reader) (ObjectInfo, error) {
	if err := m.enter("put"); err != nil {
		return ObjectInfo{}, err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("read object body: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, err
	}
	sum := md5.Sum(data)
	m.mu.Lock()
	defer m.mu.Unlock()
	obj := memoryObject{
		data:     data,
		checksum: hex.EncodeToString(sum[:]),
		modified: m.now(),
	}
	m.objects[key] = obj
	return ObjectInfo{Key: key, Size: int64(len(data)), Checksum: obj.checksum, LastModified: obj.modified, Exists: true}, nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	if err := m.enter("get"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("get %q: %w", key, ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (m *MemoryStore) Head(_ context.Context, key string) (ObjectInfo, error) {
	if err := m.enter("head"); err != nil {
		return ObjectInfo{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return ObjectInfo{Key: key}, nil
	}
	return ObjectInfo{Key: key, Size: int64(len(obj.data)), Checksum: obj.checksum, LastModified: obj.modified, Exists: true}, nil
}

func (m *MemoryStore) List(_ context.Context, prefix string, opts ListOptions) (ListPage, error) {
	if err := m.enter("list"); err != nil {
		return ListPage{}, err
	}
	limit := int(pageSize(opts.MaxKeys))

	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0)
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) && k > opts.ContinuationToken {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var page ListPage
	for i, k := range keys {
		if i == limit {
			page.NextContinuationToken = keys[i-1]
			break
		}
		obj := m.objects[k]
		page.Objects = append(page.Objects, ObjectInfo{
			Key:          k,
			Size:         int64(len(obj.data)),
			Checksum:     obj.checksum,
			LastModified: obj.modified,
			Exists:       true,
		})
	}
	return page, nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	if err := m.enter("delete"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return fmt.Errorf("delete %q: %w", key, ErrNotFound)
	}
	delete(m.objects, key)
	return nil
}
