// Package store holds the persistence collaborators of the service: a document
// store with ordered sublists and a config keyspace, and a blob store for files.
//
// Implementations:
//   - GormStore: MySQL through gorm (production)
//   - MemoryStore: in-process (tests, local runs with STORE_DRIVER=memory)
//   - CachedConfigStore: wraps any DocumentStore with a redis read-through config cache
//   - GCSBlobStore / MemoryBlobStore for files
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrVersionConflict = errors.New("record was modified by someone else")
)

// UnavailableError wraps a failure of the backing service.
// Callers surface it as a failed operation; no retry happens at this layer.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("store unavailable (%s): %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &UnavailableError{Op: op, Err: err}
}

// Document is an opaque JSON object.
type Document map[string]any

// Entry is a stored document with its identity and version.
// Version starts at 1 and increases on every write.
type Entry struct {
	ID      string
	Version int64
	Doc     Document
}

// SublistEntry is one element of an append-only sublist.
type SublistEntry struct {
	Seq      int64
	PostedAt time.Time
	Doc      Document
}

type DocumentStore interface {
	Get(ctx context.Context, collection, id string) (*Entry, error)
	// Put fully replaces (or creates) a document.
	Put(ctx context.Context, collection, id string, doc Document) (*Entry, error)
	// Update merges fields into an existing document. When expectedVersion > 0
	// the write fails with ErrVersionConflict unless the stored version matches.
	Update(ctx context.Context, collection, id string, fields Document, expectedVersion int64) (*Entry, error)
	Delete(ctx context.Context, collection, id string) error
	List(ctx context.Context, collection string, filter Filter) ([]Entry, error)
	// ReplaceAll atomically swaps the whole collection for entries.
	// Sublists are not touched.
	ReplaceAll(ctx context.Context, collection string, entries []Entry) error

	AppendToSublist(ctx context.Context, collection, id, sublist string, entry Document) (time.Time, error)
	Sublist(ctx context.Context, collection, id, sublist string) ([]SublistEntry, error)

	GetConfig(ctx context.Context, key string) (json.RawMessage, bool, error)
	SetConfig(ctx context.Context, key string, value json.RawMessage) error

	Ping(ctx context.Context) error
}

// Handle identifies a stored blob.
type Handle struct {
	Path        string    `json:"path"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type BlobStore interface {
	Put(ctx context.Context, path string, data []byte, contentType string) (Handle, error)
	List(ctx context.Context, prefix string) ([]Handle, error)
	SignedURL(ctx context.Context, h Handle, ttl time.Duration) (string, error)
}

// LoadConfig decodes the config value stored under key into dest.
func LoadConfig(ctx context.Context, s DocumentStore, key string, dest any) (bool, error) {
	raw, ok, err := s.GetConfig(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("decode config %q: %w", key, err)
	}
	return true, nil
}

func SaveConfig(ctx context.Context, s DocumentStore, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode config %q: %w", key, err)
	}
	return s.SetConfig(ctx, key, raw)
}

// normalizeDocument round-trips doc through JSON so every implementation
// hands back the same value shapes (string, float64, bool, nil, map, slice).
func normalizeDocument(doc Document) (Document, error) {
	if doc == nil {
		return Document{}, nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	out := Document{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func cloneDocument(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}
