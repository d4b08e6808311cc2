package workflow

import (
	"context"
	"time"

	"github.com/mmdatafocus/glrecon_backend/models"
	"github.com/mmdatafocus/glrecon_backend/store"
)

// GetDeadlinePolicy returns the stored policy, or the default offset with
// the evaluation day disabled when none has been saved yet.
func (s *Service) GetDeadlinePolicy(ctx context.Context) (models.DeadlinePolicy, error) {
	var p models.DeadlinePolicy
	found, err := store.LoadConfig(ctx, s.Store, models.ConfigDeadlinePolicy, &p)
	if err != nil {
		return models.DeadlinePolicy{}, err
	}
	if !found || p.WorkingDayOffset < 1 {
		offset := s.DefaultOffset
		if offset < 1 {
			offset = 1
		}
		return models.DeadlinePolicy{WorkingDayOffset: offset, EvaluationDay: p.EvaluationDay}, nil
	}
	return p, nil
}

// SetDeadlinePolicy replaces the policy. Stored deadlineUsed values are not
// touched; the next recompute sweep picks the new value up.
func (s *Service) SetDeadlinePolicy(ctx context.Context, actor models.Actor, p models.DeadlinePolicy) (models.DeadlinePolicy, error) {
	if !actor.Role.IsAdmin() {
		return models.DeadlinePolicy{}, models.ErrForbidden
	}
	if err := models.Validate(p); err != nil {
		return models.DeadlinePolicy{}, err
	}
	if err := store.SaveConfig(ctx, s.Store, models.ConfigDeadlinePolicy, p); err != nil {
		return models.DeadlinePolicy{}, err
	}
	return p, nil
}

// CurrentDeadline is the policy deadline for the month containing ref.
func (s *Service) CurrentDeadline(ctx context.Context, ref time.Time) (time.Time, error) {
	p, err := s.GetDeadlinePolicy(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return p.DeadlineFor(models.DateOf(ref, s.loc())), nil
}
