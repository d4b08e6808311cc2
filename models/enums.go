package models

import (
	"encoding/json"
	"errors"
	"strings"
)

type Status string

const (
	StatusPending          Status = "Pending"
	StatusOnTime           Status = "On time"
	StatusDelayed          Status = "Delayed"
	StatusCompletedDelayed Status = "Completed/Delayed"
	StatusReviewRequired   Status = "Review Required"
)

var allStatuses = []Status{StatusPending, StatusOnTime, StatusDelayed, StatusCompletedDelayed, StatusReviewRequired}

// ParseStatus accepts any casing of a known status label.
func ParseStatus(s string) (Status, error) {
	for _, st := range allStatuses {
		if strings.EqualFold(strings.TrimSpace(s), string(st)) {
			return st, nil
		}
	}
	return "", errors.New("invalid status")
}

func (s *Status) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("status must be string")
	}
	if str == "" {
		*s = ""
		return nil
	}
	st, err := ParseStatus(str)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

type Role string

const (
	RoleFiller   Role = "filler"
	RoleReviewer Role = "reviewer"
	RoleApprover Role = "approver"
	RoleAdmin    Role = "admin"
)

func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleFiller, "":
		return RoleFiller, nil
	case RoleReviewer:
		return RoleReviewer, nil
	case RoleApprover:
		return RoleApprover, nil
	case RoleAdmin:
		return RoleAdmin, nil
	}
	return "", errors.New("invalid role")
}

func (r Role) CanComplete() bool {
	return r == RoleFiller || r == RoleApprover || r == RoleAdmin
}

func (r Role) CanReview() bool {
	return r == RoleReviewer || r == RoleApprover || r == RoleAdmin
}

func (r Role) IsAdmin() bool { return r == RoleAdmin }

type UploadKind string

const (
	UploadKindAttachment    UploadKind = "attachment"
	UploadKindRecordImport  UploadKind = "record_import"
	UploadKindMappingImport UploadKind = "mapping_import"
)

const (
	CollectionRecords   = "reconciliation_records"
	CollectionMappings  = "gl_mappings"
	CollectionUploadLog = "upload_log"

	SublistComments    = "comments"
	SublistAttachments = "attachments"

	ConfigDeadlinePolicy       = "deadline_policy"
	ConfigLastResetPeriod      = "last_reset_period"
	ConfigLastEvaluationPeriod = "last_evaluation_period"

	DefaultReviewGroup = "Others"
)
