package workflow

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/mmdatafocus/glrecon_backend/config"
	"github.com/mmdatafocus/glrecon_backend/models"
	"github.com/mmdatafocus/glrecon_backend/store"
)

// logUpload appends an audit entry. The upload itself has already succeeded,
// so a failure here is only logged.
func (s *Service) logUpload(ctx context.Context, entry models.UploadLogEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.UploadedAt.IsZero() {
		entry.UploadedAt = s.now().UTC()
	}
	doc, err := models.EncodeDocument(entry)
	if err == nil {
		delete(doc, "id")
		_, err = s.Store.Put(ctx, models.CollectionUploadLog, entry.ID, doc)
	}
	if err != nil {
		config.LogError(s.Logger, "workflow", "logUpload", entry.FileName, entry, err)
	}
}

// ListUploadLog returns the audit log, newest first.
func (s *Service) ListUploadLog(ctx context.Context, actor models.Actor) ([]models.UploadLogEntry, error) {
	if !actor.Role.IsAdmin() {
		return nil, models.ErrForbidden
	}
	entries, err := s.Store.List(ctx, models.CollectionUploadLog, store.Filter{})
	if err != nil {
		return nil, err
	}
	out := make([]models.UploadLogEntry, 0, len(entries))
	for _, e := range entries {
		var entry models.UploadLogEntry
		if err := models.DecodeInto(e.Doc, &entry); err != nil {
			continue
		}
		entry.ID = e.ID
		out = append(out, entry)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UploadedAt.After(out[j].UploadedAt)
	})
	return out, nil
}
