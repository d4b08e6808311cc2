package store

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryBlobStore keeps blobs in memory. Signed URLs point at BaseURL and
// carry the expiry as a query parameter.
type MemoryBlobStore struct {
	mu      sync.RWMutex
	blobs   map[string]memoryBlob
	BaseURL string
	now     func() time.Time
}

type memoryBlob struct {
	handle Handle
	data   []byte
}

func NewMemoryBlobStore(baseURL string) *MemoryBlobStore {
	if baseURL == "" {
		baseURL = "memory://blobs"
	}
	return &MemoryBlobStore{blobs: map[string]memoryBlob{}, BaseURL: strings.TrimRight(baseURL, "/"), now: time.Now}
}

func (s *MemoryBlobStore) Put(ctx context.Context, path string, data []byte, contentType string) (Handle, error) {
	h := Handle{Path: path, ContentType: contentType, Size: int64(len(data)), UpdatedAt: s.now().UTC()}
	s.mu.Lock()
	s.blobs[path] = memoryBlob{handle: h, data: append([]byte(nil), data...)}
	s.mu.Unlock()
	return h, nil
}

func (s *MemoryBlobStore) List(ctx context.Context, prefix string) ([]Handle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []Handle{}
	for p, b := range s.blobs {
		if strings.HasPrefix(p, prefix) {
			out = append(out, b.handle)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (s *MemoryBlobStore) SignedURL(ctx context.Context, h Handle, ttl time.Duration) (string, error) {
	s.mu.RLock()
	_, ok := s.blobs[h.Path]
	s.mu.RUnlock()
	if !ok {
		return "", ErrNotFound
	}
	q := url.Values{}
	q.Set("expires", s.now().Add(ttl).UTC().Format(time.RFC3339))
	return s.BaseURL + "/" + h.Path + "?" + q.Encode(), nil
}

// Read returns a copy of the stored bytes.
func (s *MemoryBlobStore) Read(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[path]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), b.data...), true
}
