package storage

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/cavepedia/cavepedia/domain/document"
)

// Memory is an in-process document.ObjectStore for tests and local runs.
type Memory struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte
	baseURL string
}

// NewMemory creates an empty store. Signed URLs are built on baseURL.
func NewMemory(baseURL string) *Memory {
	return &Memory{buckets: map[string]map[string][]byte{}, baseURL: baseURL}
}

// Put stores a copy of data.
func (m *Memory) Put(_ context.Context, bucket, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[bucket]
	if !ok {
		b = map[string][]byte{}
		m.buckets[bucket] = b
	}
	b[key] = append([]byte(nil), data...)
	return nil
}

// Get returns a copy of the stored object.
func (m *Memory) Get(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.buckets[bucket][key]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s does not exist", document.ErrStorage, bucket, key)
	}
	return append([]byte(nil), data...), nil
}

// Copy duplicates an object.
func (m *Memory) Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error {
	data, err := m.Get(ctx, srcBucket, srcKey)
	if err != nil {
		return err
	}
	return m.Put(ctx, dstBucket, dstKey, data)
}

// Delete removes an object if present.
func (m *Memory) Delete(_ context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.buckets[bucket], key)
	return nil
}

// List returns sorted keys, skipping directory markers.
func (m *Memory) List(_ context.Context, bucket string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := []string{}
	for k := range m.buckets[bucket] {
		if !document.IsDirectoryMarker(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// SignedURL returns a fake URL that encodes bucket, key and ttl.
func (m *Memory) SignedURL(_ context.Context, bucket, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("%s/%s/%s?expires=%d", m.baseURL, url.PathEscape(bucket), url.PathEscape(key), int(ttl.Seconds())), nil
}

// Has reports whether an object exists.
func (m *Memory) Has(bucket, key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.buckets[bucket][key]
	return ok
}
