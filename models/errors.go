package models

import (
	"errors"
	"fmt"

	"github.com/mmdatafocus/glrecon_backend/store"
)

var (
	ErrRecordNotFound  = store.ErrNotFound
	ErrVersionConflict = store.ErrVersionConflict
	ErrReviewPending   = errors.New("record is flagged for review; clear the review flag before completing it")
	ErrForbidden       = errors.New("not allowed for this user")
	ErrBatchInProgress = errors.New("another import or sweep is running")
)

// StoreUnavailableError is returned when the backing store cannot be reached.
type StoreUnavailableError = store.UnavailableError

// InputError rejects a request before anything is mutated.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func NewInputError(field, format string, args ...any) *InputError {
	return &InputError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

type TimestampParseError struct {
	Raw string
}

func (e *TimestampParseError) Error() string {
	return fmt.Sprintf("cannot parse timestamp %q", e.Raw)
}

// MatchWarning is reported for an account with no review group mapping.
type MatchWarning struct {
	GLAccount string `json:"glAccount"`
}

func (w MatchWarning) String() string {
	return "no review group mapping for " + w.GLAccount
}
