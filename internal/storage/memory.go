package storage

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"slices"
	"strings"
	"sync"
)

// MemoryStore is an in-process BlobStore for tests and local runs.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]Object
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]Object)}
}

func memoryKey(bucket, key string) string {
	return bucket + "/" + key
}

func (m *MemoryStore) Upload(_ context.Context, obj Object) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	obj.Data = slices.Clone(obj.Data)
	obj.Tags = maps.Clone(obj.Tags)
	m.objects[memoryKey(obj.Bucket, obj.Key)] = obj
	return nil
}

func (m *MemoryStore) Download(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[memoryKey(bucket, key)]
	if !ok {
		return nil, fmt.Errorf("download s3://%s/%s: %w", bucket, key, ErrNotFound)
	}
	return slices.Clone(obj.Data), nil
}

// ListKeys yields keys in lexical order, like S3.
func (m *MemoryStore) ListKeys(_ context.Context, bucket, prefix string) iter.Seq2[string, error] {
	m.mu.RLock()
	var keys []string
	for _, obj := range m.objects {
		if obj.Bucket == bucket && strings.HasPrefix(obj.Key, prefix) {
			keys = append(keys, obj.Key)
		}
	}
	m.mu.RUnlock()
	slices.Sort(keys)

	return func(yield func(string, error) bool) {
		for _, k := range keys {
			if !yield(k, nil) {
				return
			}
		}
	}
}

// Object returns a stored object.
func (m *MemoryStore) Object(bucket, key string) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[memoryKey(bucket, key)]
	return obj, ok
}

// Len returns the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
