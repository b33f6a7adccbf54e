package storage

import (
	"context"
	"net/http"
	"strings"
	"sync"
)

type memoryObject struct {
	data        []byte
	contentType string
}

// MemoryUploader keeps objects in process and serves them over HTTP. It backs
// the memory store used for local development.
type MemoryUploader struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	prefix  string
}

// NewMemoryUploader returns an uploader whose URLs start with prefix.
func NewMemoryUploader(prefix string) *MemoryUploader {
	prefix = "/" + strings.Trim(prefix, "/") + "/"
	return &MemoryUploader{objects: make(map[string]memoryObject), prefix: prefix}
}

// Prefix is the URL path the uploader serves objects under.
func (m *MemoryUploader) Prefix() string {
	return m.prefix
}

// Upload stores a copy of content.
func (m *MemoryUploader) Upload(ctx context.Context, object string, content []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return "", errInvalidObject
	}
	if len(content) == 0 {
		return "", errEmptyContent
	}
	m.mu.Lock()
	m.objects[object] = memoryObject{data: append([]byte(nil), content...), contentType: contentType}
	m.mu.Unlock()
	return m.prefix + object, nil
}

// ServeHTTP serves a previously uploaded object.
func (m *MemoryUploader) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	object := strings.TrimPrefix(r.URL.Path, m.prefix)
	m.mu.RLock()
	obj, ok := m.objects[object]
	m.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	if obj.contentType != "" {
		w.Header().Set("Content-Type", obj.contentType)
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(obj.data)
}
