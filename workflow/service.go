package workflow

import (
	"context"
	"time"

	"github.com/mmdatafocus/glrecon_backend/config"
	"github.com/mmdatafocus/glrecon_backend/models"
	"github.com/mmdatafocus/glrecon_backend/store"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("glrecon/workflow")

// EventPublisher delivers record events. Publishing is best effort: a failed
// publish is logged and never fails the operation that produced it.
type EventPublisher interface {
	Publish(ctx context.Context, event models.RecordEvent) error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, models.RecordEvent) error { return nil }

// Service holds the collaborators every workflow needs. Build one in main and
// pass it around; there are no package-level stores.
type Service struct {
	Store  store.DocumentStore
	Blobs  store.BlobStore
	Events EventPublisher
	Lock   *AdminLock
	Logger *logrus.Logger

	Location       *time.Location
	DefaultOffset  int
	SignedURLTTL   time.Duration
	MaxUploadBytes int64
	Now            func() time.Time
}

func NewService(docs store.DocumentStore, blobs store.BlobStore, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &Service{
		Store:          docs,
		Blobs:          blobs,
		Events:         NopPublisher{},
		Lock:           NewAdminLock(nil, logger),
		Logger:         logger,
		Location:       time.UTC,
		DefaultOffset:  3,
		SignedURLTTL:   15 * time.Minute,
		MaxUploadBytes: 10 << 20,
		Now:            time.Now,
	}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *Service) loc() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

// today is the current calendar date in the configured location.
func (s *Service) today() time.Time {
	return models.DateOf(s.now(), s.loc())
}

func (s *Service) publish(ctx context.Context, event models.RecordEvent) {
	if s.Events == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now().UTC()
	}
	if err := s.Events.Publish(ctx, event); err != nil {
		config.LogError(s.Logger, "workflow", "publish", event.Type, event, err)
	}
}

func (s *Service) decode(e store.Entry) models.ReconciliationRecord {
	rec, warnings := models.DecodeRecord(e, s.loc())
	for _, w := range warnings {
		config.LogError(s.Logger, "workflow", "decode", "record "+e.ID, nil, w)
	}
	return rec
}
