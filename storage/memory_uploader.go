package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryUploader keeps objects in process. It serves local runs without a
// bucket and tests.
type MemoryUploader struct {
	mu            sync.RWMutex
	objects       map[string][]byte
	publicBaseURL string
}

func NewMemoryUploader(publicBaseURL string) *MemoryUploader {
	return &MemoryUploader{objects: make(map[string][]byte), publicBaseURL: publicBaseURL}
}

func (u *MemoryUploader) Upload(ctx context.Context, key string, contentType string, reader io.Reader) (*UploadResult, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return nil, fmt.Errorf("failed to read object body (key: %s): %w", key, err)
	}
	u.mu.Lock()
	u.objects[key] = buf.Bytes()
	u.mu.Unlock()
	return &UploadResult{Key: key, Location: u.GetPublicURL(key)}, nil
}

func (u *MemoryUploader) Delete(ctx context.Context, key string) error {
	u.mu.Lock()
	delete(u.objects, key)
	u.mu.Unlock()
	return nil
}

func (u *MemoryUploader) GetPublicURL(key string) string {
	return publicURL(u.publicBaseURL, key)
}

// Object returns a stored object body.
func (u *MemoryUploader) Object(key string) ([]byte, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	b, ok := u.objects[key]
	return b, ok
}
