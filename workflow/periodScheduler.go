package workflow

import (
	"context"
	"time"

	"github.com/mmdatafocus/glrecon_backend/config"
	"github.com/mmdatafocus/glrecon_backend/models"
	"github.com/sirupsen/logrus"
)

// PeriodScheduler runs the monthly sweeps. The reset runs only on the first
// working day itself; the recompute runs on the first tick on or after the
// policy's evaluation day, which is pulled back to the month's last day in
// short months. Each runs at most once per period, tracked by config markers
// that are checked and written under the admin lock.
type PeriodScheduler struct {
	Service  *Service
	Logger   *logrus.Logger
	Interval time.Duration
}

func NewPeriodScheduler(svc *Service, logger *logrus.Logger) *PeriodScheduler {
	return &PeriodScheduler{Service: svc, Logger: logger, Interval: 15 * time.Minute}
}

func (p *PeriodScheduler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if _, err := p.RunOnce(ctx); err != nil {
			config.LogError(p.Logger, "workflow", "PeriodScheduler.Run", "tick", nil, err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.Interval):
		}
	}
}

// RunOnce checks the calendar and returns the sweeps it ran.
func (p *PeriodScheduler) RunOnce(ctx context.Context) ([]SweepMode, error) {
	svc := p.Service
	today := svc.today()
	period := models.Period(today)
	actor := models.SystemActor("scheduler")
	var ran []SweepMode

	if models.IsFirstWorkingDay(today) {
		ok, err := p.runOnce(ctx, actor, SweepReset, models.ConfigLastResetPeriod, period)
		if err != nil {
			return ran, err
		}
		if ok {
			ran = append(ran, SweepReset)
		}
	}

	policy, err := svc.GetDeadlinePolicy(ctx)
	if err != nil {
		return ran, err
	}
	if due := policy.EvaluationDayIn(today.Year(), today.Month()); due > 0 && today.Day() >= due {
		ok, err := p.runOnce(ctx, actor, SweepRecompute, models.ConfigLastEvaluationPeriod, period)
		if err != nil {
			return ran, err
		}
		if ok {
			ran = append(ran, SweepRecompute)
		}
	}
	return ran, nil
}

// runOnce runs mode unless marker already holds period. The sweep reads the
// marker again under the admin lock and writes it before releasing.
func (p *PeriodScheduler) runOnce(ctx context.Context, actor models.Actor, mode SweepMode, marker, period string) (bool, error) {
	done, err := p.Service.periodMarkerIs(ctx, marker, period)
	if err != nil || done {
		return false, err
	}
	summary, err := p.Service.RunSweep(ctx, actor, mode, SweepOptions{PeriodMarker: marker})
	if err != nil {
		return false, err
	}
	return !summary.Skipped, nil
}
