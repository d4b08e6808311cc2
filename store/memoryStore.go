package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"
)

var errInvalidConfig = errors.New("config value is not valid JSON")

type memoryDoc struct {
	version   int64
	createdAt int64
	doc       Document
}

type sublistKey struct {
	collection, id, sublist string
}

// MemoryStore is a DocumentStore kept in process memory.
// Collections are swapped by pointer on ReplaceAll, so readers never see a
// half-built collection.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]*memoryDoc
	sublists    map[sublistKey][]SublistEntry
	configs     map[string]json.RawMessage

	seq      int64
	lastPost time.Time
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: map[string]map[string]*memoryDoc{},
		sublists:    map[sublistKey][]SublistEntry{},
		configs:     map[string]json.RawMessage{},
		now:         time.Now,
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return &Entry{ID: id, Version: d.version, Doc: cloneDocument(d.doc)}, nil
}

func (s *MemoryStore) Put(ctx context.Context, collection, id string, doc Document) (*Entry, error) {
	norm, err := normalizeDocument(doc)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	coll := s.collection(collection)
	version := int64(1)
	created := s.nextSeq()
	if existing, ok := coll[id]; ok {
		version = existing.version + 1
		created = existing.createdAt
	}
	coll[id] = &memoryDoc{version: version, createdAt: created, doc: norm}
	return &Entry{ID: id, Version: version, Doc: cloneDocument(norm)}, nil
}

func (s *MemoryStore) Update(ctx context.Context, collection, id string, fields Document, expectedVersion int64) (*Entry, error) {
	norm, err := normalizeDocument(fields)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	if expectedVersion > 0 && d.version != expectedVersion {
		return nil, ErrVersionConflict
	}
	merged := cloneDocument(d.doc)
	for k, v := range norm {
		merged[k] = v
	}
	d.doc = merged
	d.version++
	return &Entry{ID: id, Version: d.version, Doc: cloneDocument(merged)}, nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[collection][id]; !ok {
		return ErrNotFound
	}
	delete(s.collections[collection], id)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, collection string, filter Filter) ([]Entry, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if filter.Empty() {
		return []Entry{}, nil
	}
	s.mu.RLock()
	coll := s.collections[collection]
	type row struct {
		created int64
		entry   Entry
	}
	rows := make([]row, 0, len(coll))
	for id, d := range coll {
		if !filter.Matches(d.doc) {
			continue
		}
		rows = append(rows, row{created: d.createdAt, entry: Entry{ID: id, Version: d.version, Doc: cloneDocument(d.doc)}})
	}
	s.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool { return rows[i].created < rows[j].created })
	out := make([]Entry, len(rows))
	for i := range rows {
		out[i] = rows[i].entry
	}
	return out, nil
}

func (s *MemoryStore) ReplaceAll(ctx context.Context, collection string, entries []Entry) error {
	next := make(map[string]*memoryDoc, len(entries))
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		norm, err := normalizeDocument(e.Doc)
		if err != nil {
			return err
		}
		next[e.ID] = &memoryDoc{version: 1, createdAt: s.nextSeq(), doc: norm}
	}
	s.collections[collection] = next
	return nil
}

func (s *MemoryStore) AppendToSublist(ctx context.Context, collection, id, sublist string, entry Document) (time.Time, error) {
	norm, err := normalizeDocument(entry)
	if err != nil {
		return time.Time{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[collection][id]; !ok {
		return time.Time{}, ErrNotFound
	}
	posted := s.now().UTC()
	if !posted.After(s.lastPost) {
		posted = s.lastPost.Add(time.Microsecond)
	}
	s.lastPost = posted
	key := sublistKey{collection, id, sublist}
	s.sublists[key] = append(s.sublists[key], SublistEntry{Seq: s.nextSeq(), PostedAt: posted, Doc: norm})
	return posted, nil
}

func (s *MemoryStore) Sublist(ctx context.Context, collection, id, sublist string) ([]SublistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.sublists[sublistKey{collection, id, sublist}]
	out := make([]SublistEntry, len(src))
	for i, e := range src {
		out[i] = SublistEntry{Seq: e.Seq, PostedAt: e.PostedAt, Doc: cloneDocument(e.Doc)}
	}
	return out, nil
}

func (s *MemoryStore) GetConfig(ctx context.Context, key string) (json.RawMessage, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.configs[key]
	if !ok {
		return nil, false, nil
	}
	return append(json.RawMessage(nil), v...), true, nil
}

func (s *MemoryStore) SetConfig(ctx context.Context, key string, value json.RawMessage) error {
	if !json.Valid(value) {
		return errInvalidConfig
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[key] = append(json.RawMessage(nil), value...)
	return nil
}

func (s *MemoryStore) collection(name string) map[string]*memoryDoc {
	coll, ok := s.collections[name]
	if !ok {
		coll = map[string]*memoryDoc{}
		s.collections[name] = coll
	}
	return coll
}

func (s *MemoryStore) nextSeq() int64 {
	s.seq++
	return s.seq
}
