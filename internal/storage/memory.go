package storage

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"sort"
	"sync"
	"time"
)

// Object is a blob held by MemoryStorage.
type Object struct {
	Data               []byte
	ContentType        string
	ContentDisposition string
}

// MemoryStorage keeps blobs in process. It backs local development without an
// S3 endpoint, and tests.
type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string]Object
	baseURL string
}

func NewMemoryStorage(baseURL string) *MemoryStorage {
	if baseURL == "" {
		baseURL = "memory://blobs/"
	}
	return &MemoryStorage{objects: make(map[string]Object), baseURL: baseURL}
}

func (m *MemoryStorage) EnsureBucket(ctx context.Context) error {
	return nil
}

func (m *MemoryStorage) Upload(ctx context.Context, key string, body io.Reader, contentType, filename string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("failed to read upload: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = Object{Data: data, ContentType: contentType, ContentDisposition: ContentDisposition(filename)}
	return nil
}

func (m *MemoryStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, ok := m.Object(key)
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(obj.Data)), nil
}

func (m *MemoryStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *MemoryStorage) PresignUpload(ctx context.Context, key, contentType, filename string, expires time.Duration) (string, error) {
	q := url.Values{}
	q.Set("content-type", contentType)
	q.Set("expires", expires.String())
	return m.baseURL + key + "?" + q.Encode(), nil
}

func (m *MemoryStorage) PresignDownload(ctx context.Context, key string, expires time.Duration) (string, error) {
	return m.baseURL + key + "?expires=" + url.QueryEscape(expires.String()), nil
}

func (m *MemoryStorage) Size(ctx context.Context, key string) (int64, error) {
	obj, ok := m.Object(key)
	if !ok {
		return 0, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return int64(len(obj.Data)), nil
}

// Hash returns the quoted MD5 of the object, matching a single-part S3 ETag.
func (m *MemoryStorage) Hash(ctx context.Context, key string) (string, error) {
	obj, ok := m.Object(key)
	if !ok {
		return "", fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	sum := md5.Sum(obj.Data)
	return `"` + hex.EncodeToString(sum[:]) + `"`, nil
}

// Object returns a copy of the stored object.
func (m *MemoryStorage) Object(key string) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return Object{}, false
	}
	obj.Data = bytes.Clone(obj.Data)
	return obj, true
}

// Keys lists stored keys in order.
func (m *MemoryStorage) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var (
	_ Storage = (*S3Storage)(nil)
	_ Storage = (*MemoryStorage)(nil)
)
