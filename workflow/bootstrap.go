package workflow

import (
	"context"
	"fmt"
	"io"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/glrecon_backend/config"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Bootstrap connects the configured stores and publisher and returns a ready
// Service. rdb and locker may be nil. The returned func closes the publisher
// and the blob store.
func Bootstrap(ctx context.Context, settings *config.Settings, logger *logrus.Logger, rdb *redis.Client, locker *redislock.Client) (*Service, func(), error) {
	docs, err := config.OpenDocumentStore(ctx, settings, rdb)
	if err != nil {
		return nil, nil, fmt.Errorf("document store: %w", err)
	}
	blobs, err := config.OpenBlobStore(ctx, settings)
	if err != nil {
		return nil, nil, fmt.Errorf("blob store: %w", err)
	}

	svc := NewService(docs, blobs, logger)
	svc.Location = settings.Location
	svc.DefaultOffset = settings.DefaultWorkingDayOffset
	svc.SignedURLTTL = settings.SignedURLTTL
	svc.MaxUploadBytes = settings.MaxUploadBytes
	svc.Lock = NewAdminLock(locker, logger)

	deps := []any{blobs}
	if settings.PubSubProjectID != "" && settings.PubSubTopic != "" {
		pub, err := config.NewPubSubPublisher(ctx, settings.PubSubProjectID, settings.PubSubTopic, settings.PubSubCredentialsJSON)
		if err != nil {
			config.LogError(logger, "workflow", "Bootstrap", "pubsub", nil, err)
		} else {
			svc.Events = pub
			deps = append(deps, pub)
		}
	}
	return svc, closerFor(logger, deps...), nil
}

// closerFor returns a func closing every dep that is an io.Closer.
func closerFor(logger *logrus.Logger, deps ...any) func() {
	return func() {
		for _, d := range deps {
			c, ok := d.(io.Closer)
			if !ok {
				continue
			}
			if err := c.Close(); err != nil {
				config.LogError(logger, "workflow", "Bootstrap", "close", nil, err)
			}
		}
	}
}
