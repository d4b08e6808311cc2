package workflow

import (
	"context"
	"path"
	"strings"

	"github.com/mmdatafocus/glrecon_backend/config"
	"github.com/mmdatafocus/glrecon_backend/models"
	"github.com/mmdatafocus/glrecon_backend/store"
	"github.com/sirupsen/logrus"
)

// AddAttachment stores a file for a record and appends it to the record's
// attachment list. Images also get a thumbnail; a thumbnail failure is logged
// and the upload still succeeds.
func (s *Service) AddAttachment(ctx context.Context, actor models.Actor, recordID, filename string, data []byte) (*models.Attachment, error) {
	rec, err := s.loadVisible(ctx, actor, recordID)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, models.NewInputError("file", "file is empty")
	}
	if s.MaxUploadBytes > 0 && int64(len(data)) > s.MaxUploadBytes {
		return nil, models.NewInputError("file", "file exceeds %d bytes", s.MaxUploadBytes)
	}
	contentType := models.DetectContentType(filename, data)
	if !models.AllowedAttachmentType(contentType) {
		return nil, models.NewInputError("file", "file type %s is not allowed", contentType)
	}

	objectPath := models.AttachmentObjectPath(recordID, filename)
	h, err := s.Blobs.Put(ctx, objectPath, data, contentType)
	if err != nil {
		return nil, err
	}
	att := models.Attachment{
		Filename:    models.SanitizeFileName(filename),
		UploadedBy:  actor.Username,
		Path:        h.Path,
		ContentType: contentType,
		Size:        h.Size,
	}
	if models.IsImage(contentType) {
		if thumb, terr := models.MakeThumbnail(data); terr != nil {
			config.LogError(s.Logger, "workflow", "AddAttachment", "thumbnail "+objectPath, nil, terr)
		} else if th, terr := s.Blobs.Put(ctx, models.ThumbnailObjectPath(objectPath), thumb, "image/jpeg"); terr != nil {
			config.LogError(s.Logger, "workflow", "AddAttachment", "store thumbnail "+objectPath, nil, terr)
		} else {
			att.ThumbnailPath = th.Path
		}
	}

	doc, err := models.EncodeDocument(att)
	if err != nil {
		return nil, err
	}
	delete(doc, "url")
	delete(doc, "thumbnailUrl")
	uploadedAt, err := s.Store.AppendToSublist(ctx, models.CollectionRecords, recordID, models.SublistAttachments, doc)
	if err != nil {
		return nil, err
	}
	att.UploadedAt = uploadedAt

	s.logUpload(ctx, models.UploadLogEntry{
		FileName:   att.Filename,
		UploadedBy: actor.Username,
		GLAccount:  rec.GLAccount,
		Kind:       models.UploadKindAttachment,
	})
	s.sign(ctx, &att)
	return &att, nil
}

// ListAttachments returns the record's attachments with fresh signed URLs.
// Blobs found under the record's prefix that were never listed (for example
// written by an older client) are appended after the listed ones.
func (s *Service) ListAttachments(ctx context.Context, actor models.Actor, recordID string) ([]models.Attachment, error) {
	if _, err := s.loadVisible(ctx, actor, recordID); err != nil {
		return nil, err
	}
	entries, err := s.Store.Sublist(ctx, models.CollectionRecords, recordID, models.SublistAttachments)
	if err != nil {
		return nil, err
	}
	out := make([]models.Attachment, 0, len(entries))
	known := map[string]bool{}
	for _, e := range entries {
		var att models.Attachment
		if err := models.DecodeInto(e.Doc, &att); err != nil {
			config.LogError(s.Logger, "workflow", "ListAttachments", "decode "+recordID, nil, err)
			continue
		}
		att.UploadedAt = e.PostedAt
		known[att.Path] = true
		if att.ThumbnailPath != "" {
			known[att.ThumbnailPath] = true
		}
		out = append(out, att)
	}

	if s.Blobs != nil {
		handles, err := s.Blobs.List(ctx, models.AttachmentPrefix(recordID))
		if err != nil {
			config.LogError(s.Logger, "workflow", "ListAttachments", "list blobs "+recordID, nil, err)
		}
		for _, h := range handles {
			if known[h.Path] || strings.Contains(h.Path, "/thumbnails/") {
				continue
			}
			out = append(out, models.Attachment{
				Filename:    path.Base(h.Path),
				Path:        h.Path,
				ContentType: h.ContentType,
				Size:        h.Size,
				UploadedAt:  h.UpdatedAt,
			})
		}
	}

	for i := range out {
		s.sign(ctx, &out[i])
	}
	return out, nil
}

func (s *Service) sign(ctx context.Context, att *models.Attachment) {
	if s.Blobs == nil {
		return
	}
	url, err := s.Blobs.SignedURL(ctx, store.Handle{Path: att.Path}, s.SignedURLTTL)
	if err != nil {
		s.Logger.WithFields(logrus.Fields{"path": att.Path, "error": err.Error()}).Warn("cannot sign attachment url")
	} else {
		att.URL = url
	}
	if att.ThumbnailPath == "" {
		return
	}
	if url, err := s.Blobs.SignedURL(ctx, store.Handle{Path: att.ThumbnailPath}, s.SignedURLTTL); err == nil {
		att.ThumbnailURL = url
	}
}
