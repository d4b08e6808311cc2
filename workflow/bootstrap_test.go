package workflow

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/mmdatafocus/glrecon_backend/config"
	"github.com/mmdatafocus/glrecon_backend/store"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCloser struct {
	closed int
	err    error
}

func (c *countingCloser) Close() error {
	c.closed++
	return c.err
}

func TestCloserFor_ClosesEveryCloser(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	blobs := &countingCloser{}
	pub := &countingCloser{err: errors.New("already closed")}

	closeDeps := closerFor(logger, blobs, store.NewMemoryBlobStore(""), pub)
	closeDeps()

	assert.Equal(t, 1, blobs.closed)
	assert.Equal(t, 1, pub.closed)
}

func TestBootstrap_MemoryDrivers(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	settings := &config.Settings{
		StoreDriver:             config.StoreDriverMemory,
		StorageProvider:         config.StorageProviderMemory,
		Location:                time.UTC,
		DefaultWorkingDayOffset: 5,
		SignedURLTTL:            time.Minute,
		MaxUploadBytes:          1 << 20,
	}

	svc, closeDeps, err := Bootstrap(context.Background(), settings, logger, nil, nil)
	require.NoError(t, err)
	defer closeDeps()
	assert.Equal(t, 5, svc.DefaultOffset)
	assert.IsType(t, NopPublisher{}, svc.Events)
}
