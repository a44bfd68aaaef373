// Package media stores story files on the media host and validates uploads.
package media

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/beunreal/story-service/internal/domain"
	"github.com/google/uuid"
)

// File is an upload as received from the client, already size-checked.
type File struct {
	Name        string
	ContentType string
	Kind        domain.MediaKind
	Data        []byte
}

// Stored describes an object written to the media host.
type Stored struct {
	URL          string
	Key          string
	ThumbnailURL string
	ThumbnailKey string
}

// Media returns the domain reference for s.
func (s Stored) Media(kind domain.MediaKind) (domain.Media, error) {
	m, err := domain.NewMedia(s.URL, kind)
	if err != nil {
		return domain.Media{}, err
	}
	m.Key = s.Key
	m.ThumbnailURL = s.ThumbnailURL
	return m, nil
}

type Uploader interface {
	Upload(ctx context.Context, ownerID string, f File) (Stored, error)
	Delete(ctx context.Context, s Stored) error
}

// objectKey is {prefix}/{owner}/{uuid}{ext}.
func objectKey(prefix, ownerID, filename, contentType string) string {
	ext := strings.ToLower(path.Ext(filename))
	if ext == "" || len(ext) > 6 {
		ext = extFor(contentType)
	}
	key := ownerID + "/" + uuid.NewString() + ext
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		key = prefix + "/" + key
	}
	return key
}

func thumbKey(key string) string {
	return strings.TrimSuffix(key, path.Ext(key)) + "_thumb.jpg"
}

// Memory keeps uploads in process. It backs the memory store driver and tests.
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte
	baseURL string
}

func NewMemory(baseURL string) *Memory {
	return &Memory{objects: map[string][]byte{}, baseURL: strings.TrimRight(baseURL, "/")}
}

func (m *Memory) Upload(_ context.Context, ownerID string, f File) (Stored, error) {
	key := objectKey("stories", ownerID, f.Name, f.ContentType)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), f.Data...)
	return Stored{URL: fmt.Sprintf("%s/%s", m.baseURL, key), Key: key}, nil
}

func (m *Memory) Delete(_ context.Context, s Stored) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, s.Key)
	if s.ThumbnailKey != "" {
		delete(m.objects, s.ThumbnailKey)
	}
	return nil
}

// Has reports whether key is stored.
func (m *Memory) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
