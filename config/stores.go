package config

import (
	"context"
	"fmt"

	"github.com/mmdatafocus/glrecon_backend/store"
	"github.com/redis/go-redis/v9"
)

// OpenDocumentStore builds the configured DocumentStore. For mysql it blocks
// until the database is reachable (or ctx ends) and migrates the tables.
func OpenDocumentStore(ctx context.Context, s *Settings, rdb *redis.Client) (store.DocumentStore, error) {
	var inner store.DocumentStore
	switch s.StoreDriver {
	case StoreDriverMemory:
		inner = store.NewMemoryStore()
	case StoreDriverMySQL:
		conn, err := ConnectDatabaseWithRetry(ctx, s.DB)
		if err != nil {
			return nil, err
		}
		gs := store.NewGormStore(conn)
		if err := gs.Migrate(ctx); err != nil {
			return nil, err
		}
		inner = gs
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", s.StoreDriver)
	}
	return store.NewCachedConfigStore(inner, rdb, s.ConfigCacheTTL), nil
}

func OpenBlobStore(ctx context.Context, s *Settings) (store.BlobStore, error) {
	switch s.StorageProvider {
	case StorageProviderMemory:
		return store.NewMemoryBlobStore(""), nil
	case StorageProviderGCS:
		return store.NewGCSBlobStore(ctx, s.GCS)
	}
	return nil, fmt.Errorf("unknown STORAGE_PROVIDER %q", s.StorageProvider)
}
