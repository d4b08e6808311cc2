package models

import (
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

type StatusInput struct {
	Completed      bool
	CompletedAt    *time.Time
	ReviewRequired bool
	DeadlineUsed   *time.Time
}

// EvaluateStatus derives a record's status. It never fails; a nil deadline
// means there is nothing to be late against and open records stay Pending.
// today and CompletedAt are compared as calendar dates in loc.
func EvaluateStatus(in StatusInput, today time.Time, loc *time.Location) Status {
	if in.ReviewRequired {
		return StatusReviewRequired
	}
	if in.Completed && in.CompletedAt != nil {
		if in.DeadlineUsed == nil || !DateOf(*in.CompletedAt, loc).After(DateOf(*in.DeadlineUsed, time.UTC)) {
			return StatusOnTime
		}
		return StatusCompletedDelayed
	}
	if in.DeadlineUsed == nil || !DateOf(today, loc).After(DateOf(*in.DeadlineUsed, time.UTC)) {
		return StatusPending
	}
	return StatusDelayed
}

var completedAtLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	DateLayout,
	"02/01/2006",
}

// ParseCompletedAt reads a completion timestamp. Values without a zone are
// taken in loc. Bare numbers are Excel serial dates.
func ParseCompletedAt(raw string, loc *time.Location) (*time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, nil
	}
	for _, layout := range completedAtLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return &t, nil
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			local := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc)
			return &local, nil
		}
	}
	return nil, &TimestampParseError{Raw: raw}
}

// ParseBool reads spreadsheet-style truthy values.
func ParseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "yes", "y", "1", "x", "si", "sí", "done", "completed":
		return true
	}
	return false
}
