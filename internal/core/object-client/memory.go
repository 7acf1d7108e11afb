package objectclient

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/markdave123-py/Kaleem/internal/core"
)

// MemoryClient keeps blobs in process memory.
type MemoryClient struct {
	mu      sync.RWMutex
	bucket  string
	objects map[string]memoryObject
	now     func() time.Time
}

type memoryObject struct {
	data        []byte
	contentType string
}

var _ core.ObjectClient = (*MemoryClient)(nil)

func NewMemoryClient(bucket string) *MemoryClient {
	return &MemoryClient{bucket: bucket, objects: make(map[string]memoryObject), now: time.Now}
}

func (m *MemoryClient) Upload(ctx context.Context, key string, data []byte, contentType string) (core.UploadResult, error) {
	if err := ctx.Err(); err != nil {
		return core.UploadResult{}, newBlobError("upload", key, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memoryObject{data: append([]byte(nil), data...), contentType: contentType}
	return core.UploadResult{Key: key, Location: m.location(key), Size: int64(len(data))}, nil
}

func (m *MemoryClient) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", newBlobError("sign", key, err)
	}
	if ttl <= 0 {
		return "", &BlobError{Op: "sign", Key: key, Reason: ReasonInvalid, Err: fmt.Errorf("ttl must be positive, got %s", ttl)}
	}
	m.mu.RLock()
	_, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return "", &BlobError{Op: "sign", Key: key, Reason: ReasonNotFound, Err: errors.New("object does not exist")}
	}
	q := url.Values{}
	q.Set("expires", m.now().Add(ttl).UTC().Format(time.RFC3339))
	return m.location(key) + "?" + q.Encode(), nil
}

func (m *MemoryClient) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// Object returns the stored bytes of key.
func (m *MemoryClient) Object(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.objects[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), o.data...), true
}

// Len reports how many blobs are stored.
func (m *MemoryClient) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

func (m *MemoryClient) location(key string) string {
	return "memory://" + m.bucket + "/" + key
}
