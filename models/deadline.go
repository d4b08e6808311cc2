package models

import "time"

// Calendar dates are carried as time.Time at midnight UTC.

const DateLayout = "2006-01-02"

// DateOf returns the calendar date of t as seen in loc.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func isWorkingDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// NthWorkingDay returns the offset-th Monday-Friday day of the month, counting
// the 1st inclusively. Offsets past the end of the month keep counting into
// the following month. Offsets below 1 are treated as 1.
func NthWorkingDay(year int, month time.Month, offset int) time.Time {
	if offset < 1 {
		offset = 1
	}
	day := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	count := 0
	for {
		if isWorkingDay(day) {
			count++
			if count == offset {
				return day
			}
		}
		day = day.AddDate(0, 0, 1)
	}
}

func FirstWorkingDay(year int, month time.Month) time.Time {
	return NthWorkingDay(year, month, 1)
}

func IsFirstWorkingDay(date time.Time) bool {
	y, m, d := date.Date()
	return FirstWorkingDay(y, m).Day() == d
}

// DeadlinePolicy is the single deadline setting stored under ConfigDeadlinePolicy.
type DeadlinePolicy struct {
	WorkingDayOffset int `json:"workingDayOffset" validate:"min=1,max=31"`
	// EvaluationDay is the day of month the scheduler recomputes statuses; 0 disables it.
	// Days past the end of a short month fall on its last day.
	EvaluationDay int `json:"evaluationDay" validate:"min=0,max=31"`
}

// EvaluationDayIn returns the day the recompute is due in the given month,
// or 0 when evaluation is disabled.
func (p DeadlinePolicy) EvaluationDayIn(year int, month time.Month) int {
	if p.EvaluationDay <= 0 {
		return 0
	}
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if p.EvaluationDay > last {
		return last
	}
	return p.EvaluationDay
}

// DeadlineFor returns the deadline for the month containing ref.
func (p DeadlinePolicy) DeadlineFor(ref time.Time) time.Time {
	y, m, _ := ref.Date()
	return NthWorkingDay(y, m, p.WorkingDayOffset)
}

// Period is the YYYY-MM key used by the scheduler markers.
func Period(date time.Time) string {
	return date.Format("2006-01")
}
