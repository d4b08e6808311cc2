package workflow

import (
	"context"

	"github.com/mmdatafocus/glrecon_backend/models"
	"github.com/mmdatafocus/glrecon_backend/store"
)

func (s *Service) AddComment(ctx context.Context, actor models.Actor, recordID string, input models.NewComment) (*models.Comment, error) {
	input.Text = input.Trimmed()
	if err := models.Validate(input); err != nil {
		return nil, err
	}
	if _, err := s.loadVisible(ctx, actor, recordID); err != nil {
		return nil, err
	}
	c := models.Comment{Author: actor.Username, Text: input.Text}
	postedAt, err := s.Store.AppendToSublist(ctx, models.CollectionRecords, recordID, models.SublistComments, store.Document{
		"author": c.Author,
		"text":   c.Text,
	})
	if err != nil {
		return nil, err
	}
	c.PostedAt = postedAt
	return &c, nil
}

// ListComments returns comments in the order they were posted.
func (s *Service) ListComments(ctx context.Context, actor models.Actor, recordID string) ([]models.Comment, error) {
	if _, err := s.loadVisible(ctx, actor, recordID); err != nil {
		return nil, err
	}
	entries, err := s.Store.Sublist(ctx, models.CollectionRecords, recordID, models.SublistComments)
	if err != nil {
		return nil, err
	}
	comments := make([]models.Comment, 0, len(entries))
	for _, e := range entries {
		comments = append(comments, models.CommentFromSublist(e))
	}
	return comments, nil
}
