package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/glrecon_backend/config"
	"github.com/mmdatafocus/glrecon_backend/models"
	"github.com/mmdatafocus/glrecon_backend/store"
	"github.com/mmdatafocus/glrecon_backend/utils"
)

type RecordQuery struct {
	Status      string
	Country     string
	ReviewGroup string
}

type CompletionInput struct {
	Completed   bool    `json:"completed"`
	CompletedAt *string `json:"completedAt"`
	// Version, when set, must match the stored version.
	Version int64 `json:"version"`
}

type ReviewInput struct {
	ReviewRequired bool  `json:"reviewRequired"`
	Version        int64 `json:"version"`
}

type NewRecord struct {
	GLAccount  string `json:"glAccount" validate:"required"`
	GLName     string `json:"glName"`
	Country    string `json:"country" validate:"required"`
	EntityCode string `json:"entityCode"`
	Balance    string `json:"balance"`
	Stream     string `json:"stream"`
}

// ListRecords returns the records the actor may see, in creation order, with
// statuses evaluated for today.
func (s *Service) ListRecords(ctx context.Context, actor models.Actor, q RecordQuery) ([]models.ReconciliationRecord, error) {
	var want models.Status
	if q.Status != "" {
		st, err := models.ParseStatus(q.Status)
		if err != nil {
			return nil, models.NewInputError("status", "unknown status %q", q.Status)
		}
		want = st
	}

	filter := actor.Scope.Filter()
	if q.Country != "" {
		filter = filter.In("country", q.Country)
	}
	if q.ReviewGroup != "" {
		filter = filter.In("reviewGroup", q.ReviewGroup)
	}
	entries, err := s.Store.List(ctx, models.CollectionRecords, filter)
	if err != nil {
		return nil, err
	}

	deadline, err := s.CurrentDeadline(ctx, s.now())
	if err != nil {
		return nil, err
	}
	out := make([]models.ReconciliationRecord, 0, len(entries))
	for _, e := range entries {
		rec := s.decode(e)
		if !actor.Scope.Allows(rec) {
			continue
		}
		s.evaluate(&rec, deadline)
		if want != "" && rec.Status != want {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// evaluate refreshes the status for display. A record without a deadline is
// judged against the current policy deadline.
func (s *Service) evaluate(rec *models.ReconciliationRecord, currentDeadline time.Time) {
	stored := rec.DeadlineUsed
	if stored == nil {
		rec.DeadlineUsed = models.NewDate(currentDeadline)
	}
	rec.Refresh(s.today(), s.loc())
	rec.DeadlineUsed = stored
}

// loadVisible reads one record and hides it unless the actor's scope allows it.
func (s *Service) loadVisible(ctx context.Context, actor models.Actor, id string) (models.ReconciliationRecord, error) {
	e, err := s.Store.Get(ctx, models.CollectionRecords, id)
	if err != nil {
		return models.ReconciliationRecord{}, err
	}
	rec := s.decode(*e)
	if !actor.Scope.Allows(rec) {
		return models.ReconciliationRecord{}, models.ErrRecordNotFound
	}
	return rec, nil
}

func (s *Service) GetRecord(ctx context.Context, actor models.Actor, id string) (*models.RecordDetail, error) {
	rec, err := s.loadVisible(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	deadline, err := s.CurrentDeadline(ctx, s.now())
	if err != nil {
		return nil, err
	}
	s.evaluate(&rec, deadline)

	comments, err := s.ListComments(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	attachments, err := s.ListAttachments(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return &models.RecordDetail{ReconciliationRecord: rec, Comments: comments, Attachments: attachments}, nil
}

func (s *Service) SetCompletion(ctx context.Context, actor models.Actor, id string, in CompletionInput) (*models.ReconciliationRecord, error) {
	if !actor.Role.CanComplete() {
		return nil, models.ErrForbidden
	}
	rec, err := s.loadVisible(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if in.Completed && rec.ReviewRequired {
		return nil, models.ErrReviewPending
	}

	rec.Completed = in.Completed
	rec.CompletedAt = nil
	if in.Completed {
		at := s.now()
		if in.CompletedAt != nil && strings.TrimSpace(*in.CompletedAt) != "" {
			parsed, perr := models.ParseCompletedAt(*in.CompletedAt, s.loc())
			if perr != nil {
				return nil, models.NewInputError("completedAt", "%v", perr)
			}
			at = *parsed
		}
		rec.CompletedAt = &at
	}
	return s.save(ctx, actor, rec, in.Version)
}

func (s *Service) SetReview(ctx context.Context, actor models.Actor, id string, in ReviewInput) (*models.ReconciliationRecord, error) {
	if !actor.Role.CanReview() {
		return nil, models.ErrForbidden
	}
	rec, err := s.loadVisible(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	rec.ReviewRequired = in.ReviewRequired
	return s.save(ctx, actor, rec, in.Version)
}

// save recomputes status and writes rec with an optimistic version check.
func (s *Service) save(ctx context.Context, actor models.Actor, rec models.ReconciliationRecord, version int64) (*models.ReconciliationRecord, error) {
	if version == 0 {
		version = rec.Version
	}
	previous := rec.Status
	if rec.DeadlineUsed == nil {
		deadline, err := s.CurrentDeadline(ctx, s.now())
		if err != nil {
			return nil, err
		}
		rec.DeadlineUsed = models.NewDate(deadline)
	}
	rec.Refresh(s.today(), s.loc())
	now := s.now().UTC()
	rec.UpdatedBy = actor.Username
	rec.UpdatedAt = &now

	doc, err := rec.ToDocument()
	if err != nil {
		return nil, err
	}
	e, err := s.Store.Update(ctx, models.CollectionRecords, rec.ID, doc, version)
	if err != nil {
		return nil, err
	}
	rec.Version = e.Version
	if rec.Status != previous {
		s.publish(ctx, models.RecordEvent{
			Type:     models.EventRecordStatusChanged,
			RecordID: rec.ID,
			Status:   rec.Status,
			Actor:    actor.Username,
		})
	}
	return &rec, nil
}

// CreateRecord adds a single record outside of a bulk import.
func (s *Service) CreateRecord(ctx context.Context, actor models.Actor, in NewRecord) (*models.ReconciliationRecord, error) {
	if !actor.Role.IsAdmin() {
		return nil, models.ErrForbidden
	}
	if err := models.Validate(in); err != nil {
		return nil, err
	}
	acct, ok := models.NormalizeGLAccount(in.GLAccount)
	if !ok {
		return nil, models.NewInputError("glAccount", "invalid GL account %q", in.GLAccount)
	}
	mappings, err := s.loadMappings(ctx)
	if err != nil {
		return nil, err
	}
	deadline, err := s.CurrentDeadline(ctx, s.now())
	if err != nil {
		return nil, err
	}
	rec, _ := s.newRecord(models.ImportRow{
		GLAccount:  acct,
		GLName:     strings.TrimSpace(in.GLName),
		Country:    strings.TrimSpace(in.Country),
		EntityCode: strings.TrimSpace(in.EntityCode),
		Balance:    strings.TrimSpace(in.Balance),
		Stream:     strings.TrimSpace(in.Stream),
	}, mappings, deadline, actor)
	if !actor.Scope.Allows(rec) {
		return nil, models.ErrForbidden
	}
	doc, err := rec.ToDocument()
	if err != nil {
		return nil, err
	}
	e, err := s.Store.Put(ctx, models.CollectionRecords, rec.ID, doc)
	if err != nil {
		return nil, err
	}
	rec.Version = e.Version
	return &rec, nil
}

func (s *Service) DeleteRecord(ctx context.Context, actor models.Actor, id string) error {
	if !actor.Role.IsAdmin() {
		return models.ErrForbidden
	}
	if _, err := s.loadVisible(ctx, actor, id); err != nil {
		return err
	}
	return s.Store.Delete(ctx, models.CollectionRecords, id)
}

// newRecord builds a fresh record from a typed row. An unparseable completion
// timestamp is returned as a warning and the record is kept without it.
func (s *Service) newRecord(row models.ImportRow, mappings map[string]string, deadline time.Time, actor models.Actor) (models.ReconciliationRecord, error) {
	now := s.now().UTC()
	rec := models.ReconciliationRecord{
		ID:           uuid.NewString(),
		GLAccount:    row.GLAccount,
		GLName:       row.GLName,
		Country:      row.Country,
		EntityCode:   row.EntityCode,
		Balance:      row.Balance,
		Stream:       row.Stream,
		ReviewGroup:  models.DefaultReviewGroup,
		DeadlineUsed: models.NewDate(deadline),
		UpdatedBy:    actor.Username,
		UpdatedAt:    &now,
	}
	if group, ok := mappings[row.GLAccount]; ok {
		rec.ReviewGroup = group
	}
	if row.Balance != "" {
		if amt, err := utils.ParseAmount(row.Balance); err == nil {
			rec.BalanceAmount = &amt
		}
	}
	var warning error
	if row.Completed {
		rec.Completed = true
		if row.CompletedAt != "" {
			at, err := models.ParseCompletedAt(row.CompletedAt, s.loc())
			if err != nil {
				warning = err
				config.LogError(s.Logger, "workflow", "newRecord", fmt.Sprintf("row %d", row.Row), row, err)
			}
			rec.CompletedAt = at
		}
	}
	rec.Refresh(s.today(), s.loc())
	return rec, warning
}

func (s *Service) loadMappings(ctx context.Context) (map[string]string, error) {
	entries, err := s.Store.List(ctx, models.CollectionMappings, store.Filter{})
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		var m models.MappingEntry
		if err := models.DecodeInto(e.Doc, &m); err != nil {
			continue
		}
		if acct, ok := models.NormalizeGLAccount(m.GLAccount); ok {
			out[acct] = m.ReviewGroup
		}
	}
	return out, nil
}
