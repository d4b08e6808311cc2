package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mmdatafocus/glrecon_backend/store"
	"github.com/shopspring/decimal"
)

// Date is a calendar date serialized as YYYY-MM-DD.
type Date struct {
	time.Time
}

func NewDate(t time.Time) *Date {
	y, m, d := t.Date()
	return &Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func (d Date) String() string { return d.Format(DateLayout) }

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(DateLayout))
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

type ReconciliationRecord struct {
	ID             string           `json:"id"`
	Version        int64            `json:"version"`
	GLAccount      string           `json:"glAccount"`
	GLName         string           `json:"glName"`
	Country        string           `json:"country"`
	EntityCode     string           `json:"entityCode"`
	Balance        string           `json:"balance"`
	BalanceAmount  *decimal.Decimal `json:"balanceAmount"`
	Stream         string           `json:"stream"`
	Completed      bool             `json:"completed"`
	CompletedAt    *time.Time       `json:"completedAt"`
	ReviewRequired bool             `json:"reviewRequired"`
	Status         Status           `json:"status"`
	ReviewGroup    string           `json:"reviewGroup"`
	DeadlineUsed   *Date            `json:"deadlineUsed"`
	UpdatedBy      string           `json:"updatedBy,omitempty"`
	UpdatedAt      *time.Time       `json:"updatedAt,omitempty"`
}

// RecordDetail is a record together with its sublists.
type RecordDetail struct {
	ReconciliationRecord
	Comments    []Comment    `json:"comments"`
	Attachments []Attachment `json:"attachments"`
}

func (r *ReconciliationRecord) StatusInput() StatusInput {
	in := StatusInput{
		Completed:      r.Completed,
		CompletedAt:    r.CompletedAt,
		ReviewRequired: r.ReviewRequired,
	}
	if r.DeadlineUsed != nil {
		t := r.DeadlineUsed.Time
		in.DeadlineUsed = &t
	}
	return in
}

// Refresh recomputes Status from the record's own fields.
func (r *ReconciliationRecord) Refresh(today time.Time, loc *time.Location) {
	if r.ReviewRequired {
		r.Completed = false
		r.CompletedAt = nil
	}
	r.Status = EvaluateStatus(r.StatusInput(), today, loc)
}

// ToDocument renders the stored form. Identity and version live outside the body.
func (r ReconciliationRecord) ToDocument() (store.Document, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	doc := store.Document{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	delete(doc, "id")
	delete(doc, "version")
	return doc, nil
}

// DecodeRecord is the typed boundary for stored documents. Timestamps that
// do not parse are dropped and returned as warnings instead of failing the read.
func DecodeRecord(e store.Entry, loc *time.Location) (ReconciliationRecord, []error) {
	var warnings []error
	body := make(store.Document, len(e.Doc))
	for k, v := range e.Doc {
		body[k] = v
	}
	rawCompleted := body["completedAt"]
	rawDeadline := body["deadlineUsed"]
	delete(body, "completedAt")
	delete(body, "deadlineUsed")

	var rec ReconciliationRecord
	raw, err := json.Marshal(body)
	if err == nil {
		err = json.Unmarshal(raw, &rec)
	}
	if err != nil {
		warnings = append(warnings, fmt.Errorf("decode record %s: %w", e.ID, err))
	}
	rec.ID = e.ID
	rec.Version = e.Version

	if s := store.ValueString(rawCompleted); s != "" {
		t, perr := ParseCompletedAt(s, loc)
		if perr != nil {
			warnings = append(warnings, perr)
		}
		rec.CompletedAt = t
	}
	if s := store.ValueString(rawDeadline); s != "" {
		t, perr := ParseCompletedAt(s, time.UTC)
		if perr != nil {
			warnings = append(warnings, perr)
		} else if t != nil {
			rec.DeadlineUsed = NewDate(*t)
		}
	}
	if rec.ReviewGroup == "" {
		rec.ReviewGroup = DefaultReviewGroup
	}
	return rec, warnings
}

type MappingEntry struct {
	GLAccount   string `json:"glAccount"`
	ReviewGroup string `json:"reviewGroup"`
}

type UploadLogEntry struct {
	ID         string     `json:"id"`
	FileName   string     `json:"fileName"`
	UploadedAt time.Time  `json:"uploadedAt"`
	UploadedBy string     `json:"uploadedBy"`
	GLAccount  string     `json:"glAccount,omitempty"`
	Kind       UploadKind `json:"kind"`
}

// RecordEvent is published after state changes.
type RecordEvent struct {
	Type      string    `json:"type"`
	RecordID  string    `json:"recordId,omitempty"`
	Status    Status    `json:"status,omitempty"`
	Count     int       `json:"count,omitempty"`
	Actor     string    `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	EventRecordsImported     = "records.imported"
	EventRecordStatusChanged = "record.status_changed"
	EventRecordsSwept        = "records.swept"
	EventMappingsImported    = "mappings.imported"
)

// DecodeInto copies a stored document into a typed value.
func DecodeInto(doc store.Document, dest any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// EncodeDocument is the inverse of DecodeInto.
func EncodeDocument(v any) (store.Document, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	doc := store.Document{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
