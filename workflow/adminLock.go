package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/glrecon_backend/config"
	"github.com/mmdatafocus/glrecon_backend/models"
	"github.com/sirupsen/logrus"
)

const adminBatchLockKey = "lock:admin-batch"

// AdminLock serializes imports and sweeps across instances. Without redis,
// or when redis errors, the batch runs unlocked.
type AdminLock struct {
	locker *redislock.Client
	logger *logrus.Logger
	TTL    time.Duration
}

func NewAdminLock(locker *redislock.Client, logger *logrus.Logger) *AdminLock {
	return &AdminLock{locker: locker, logger: logger, TTL: 5 * time.Minute}
}

// Do runs fn while holding the batch lock. It returns ErrBatchInProgress if
// another holder has it.
func (l *AdminLock) Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if l == nil || l.locker == nil {
		return fn(ctx)
	}
	lock, err := l.locker.Obtain(ctx, adminBatchLockKey, l.TTL, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return models.ErrBatchInProgress
	}
	if err != nil {
		config.LogError(l.logger, "workflow", "AdminLock.Do", "obtain lock for "+name, nil, err)
		return fn(ctx)
	}
	defer func() {
		_ = lock.Release(context.WithoutCancel(ctx))
	}()
	return fn(ctx)
}
