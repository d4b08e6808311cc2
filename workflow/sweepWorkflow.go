package workflow

import (
	"context"
	"errors"

	"github.com/mmdatafocus/glrecon_backend/config"
	"github.com/mmdatafocus/glrecon_backend/models"
	"github.com/mmdatafocus/glrecon_backend/store"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

type SweepMode string

const (
	SweepRecompute SweepMode = "recompute"
	SweepReset     SweepMode = "reset"
)

type SweepOptions struct {
	DryRun bool
	// PeriodMarker, when set, names a config key holding the last period this
	// sweep ran for. Under the admin lock the sweep is skipped if the key
	// already holds the current period, and the key is written when it finishes.
	PeriodMarker string
}

type SweepSummary struct {
	Mode    SweepMode `json:"mode"`
	Period  string    `json:"period"`
	Total   int       `json:"total"`
	Changed int       `json:"changed"`
	Failed  int       `json:"failed"`
	DryRun  bool      `json:"dryRun"`
	Skipped bool      `json:"skipped,omitempty"`
}

// RecomputeAll pins every record to the current policy deadline and
// re-evaluates its status.
func (s *Service) RecomputeAll(ctx context.Context, actor models.Actor, opts SweepOptions) (*SweepSummary, error) {
	deadline, err := s.CurrentDeadline(ctx, s.now())
	if err != nil {
		return nil, err
	}
	return s.sweep(ctx, actor, SweepRecompute, opts, func(rec *models.ReconciliationRecord) {
		rec.DeadlineUsed = models.NewDate(deadline)
	})
}

// ResetAll starts a new period: completion is cleared and the deadline is
// unpinned. Review flags stay as they are, so a flagged record still reads
// Review Required after a reset and only becomes Pending once a reviewer
// clears the flag.
func (s *Service) ResetAll(ctx context.Context, actor models.Actor, opts SweepOptions) (*SweepSummary, error) {
	return s.sweep(ctx, actor, SweepReset, opts, func(rec *models.ReconciliationRecord) {
		rec.Completed = false
		rec.CompletedAt = nil
		rec.DeadlineUsed = nil
	})
}

func (s *Service) RunSweep(ctx context.Context, actor models.Actor, mode SweepMode, opts SweepOptions) (*SweepSummary, error) {
	switch mode {
	case SweepRecompute:
		return s.RecomputeAll(ctx, actor, opts)
	case SweepReset:
		return s.ResetAll(ctx, actor, opts)
	}
	return nil, models.NewInputError("mode", "unknown sweep mode %q", mode)
}

func (s *Service) sweep(ctx context.Context, actor models.Actor, mode SweepMode, opts SweepOptions, apply func(*models.ReconciliationRecord)) (*SweepSummary, error) {
	if !actor.Role.IsAdmin() {
		return nil, models.ErrForbidden
	}
	ctx, span := tracer.Start(ctx, "workflow.sweep")
	span.SetAttributes(attribute.String("sweep.mode", string(mode)), attribute.Bool("dry_run", opts.DryRun))
	defer span.End()

	summary := &SweepSummary{Mode: mode, Period: models.Period(s.today()), DryRun: opts.DryRun}
	run := func(ctx context.Context) error {
		if opts.PeriodMarker != "" {
			done, err := s.periodMarkerIs(ctx, opts.PeriodMarker, summary.Period)
			if err != nil {
				return err
			}
			if done {
				summary.Skipped = true
				return nil
			}
		}
		entries, err := s.Store.List(ctx, models.CollectionRecords, store.Filter{})
		if err != nil {
			return err
		}
		summary.Total = len(entries)
		for _, e := range entries {
			changed, err := s.sweepOne(ctx, e, apply, opts.DryRun)
			if err != nil {
				var unavailable *models.StoreUnavailableError
				if errors.As(err, &unavailable) {
					return err
				}
				summary.Failed++
				config.LogError(s.Logger, "workflow", "sweep", string(mode)+" "+e.ID, nil, err)
				continue
			}
			if changed {
				summary.Changed++
			}
		}
		if opts.PeriodMarker != "" && !opts.DryRun {
			return store.SaveConfig(ctx, s.Store, opts.PeriodMarker, summary.Period)
		}
		return nil
	}

	var err error
	if opts.DryRun {
		err = run(ctx)
	} else {
		err = s.Lock.Do(ctx, "sweep "+string(mode), run)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("sweep.changed", summary.Changed))
	if summary.Skipped {
		return summary, nil
	}

	if !opts.DryRun {
		s.publish(ctx, models.RecordEvent{Type: models.EventRecordsSwept, Count: summary.Changed, Actor: actor.Username})
	}
	config.LogInfo(s.Logger, "workflow", "sweep", "sweep finished", logrus.Fields{
		"mode":    mode,
		"total":   summary.Total,
		"changed": summary.Changed,
		"failed":  summary.Failed,
		"dryRun":  opts.DryRun,
	})
	return summary, nil
}

// sweepOne applies fn to a record and writes it back when anything changed.
// A concurrent edit is retried once against the fresh copy.
func (s *Service) sweepOne(ctx context.Context, e store.Entry, apply func(*models.ReconciliationRecord), dryRun bool) (bool, error) {
	for attempt := 0; ; attempt++ {
		rec := s.decode(e)
		before, err := rec.ToDocument()
		if err != nil {
			return false, err
		}
		apply(&rec)
		rec.Refresh(s.today(), s.loc())
		after, err := rec.ToDocument()
		if err != nil {
			return false, err
		}
		fields := changedFields(before, after)
		if len(fields) == 0 {
			return false, nil
		}
		if dryRun {
			return true, nil
		}
		_, err = s.Store.Update(ctx, models.CollectionRecords, e.ID, fields, e.Version)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, models.ErrVersionConflict) || attempt > 0 {
			return false, err
		}
		fresh, gerr := s.Store.Get(ctx, models.CollectionRecords, e.ID)
		if gerr != nil {
			return false, gerr
		}
		e = *fresh
	}
}

func changedFields(before, after store.Document) store.Document {
	out := store.Document{}
	for k, v := range after {
		if store.ValueString(before[k]) != store.ValueString(v) {
			out[k] = v
		}
	}
	return out
}

// periodMarkerIs reports whether the config key already holds period.
func (s *Service) periodMarkerIs(ctx context.Context, key, period string) (bool, error) {
	var last string
	found, err := store.LoadConfig(ctx, s.Store, key, &last)
	if err != nil {
		return false, err
	}
	return found && last == period, nil
}
