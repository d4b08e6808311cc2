package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const configCachePrefix = "glrecon:config:"

// CachedConfigStore is a DocumentStore whose config keyspace is read through
// redis. Writes go to the inner store first and then drop the cached key.
// Redis failures never fail a call; the inner store stays authoritative.
type CachedConfigStore struct {
	DocumentStore
	rdb *redis.Client
	ttl time.Duration
}

func NewCachedConfigStore(inner DocumentStore, rdb *redis.Client, ttl time.Duration) DocumentStore {
	if rdb == nil {
		return inner
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedConfigStore{DocumentStore: inner, rdb: rdb, ttl: ttl}
}

func (s *CachedConfigStore) GetConfig(ctx context.Context, key string) (json.RawMessage, bool, error) {
	if val, err := s.rdb.Get(ctx, configCachePrefix+key).Bytes(); err == nil && json.Valid(val) {
		return json.RawMessage(val), true, nil
	}
	raw, ok, err := s.DocumentStore.GetConfig(ctx, key)
	if err != nil || !ok {
		return raw, ok, err
	}
	s.rdb.Set(ctx, configCachePrefix+key, []byte(raw), s.ttl)
	return raw, true, nil
}

func (s *CachedConfigStore) SetConfig(ctx context.Context, key string, value json.RawMessage) error {
	if err := s.DocumentStore.SetConfig(ctx, key, value); err != nil {
		return err
	}
	s.rdb.Del(ctx, configCachePrefix+key)
	return nil
}
