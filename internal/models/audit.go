package models

import "time"

// AuditActionType classifies a retroactive change.
type AuditActionType string

const (
	AuditActionCorrection   AuditActionType = "correction"
	AuditActionInvalidation AuditActionType = "invalidation"
	AuditActionRevocation   AuditActionType = "revocation"
)

// Valid returns true when the action is supported.
func (a AuditActionType) Valid() bool {
	switch a {
	case AuditActionCorrection, AuditActionInvalidation, AuditActionRevocation:
		return true
	default:
		return false
	}
}

// AuditTargetType names the kind of fact an entry mutates.
type AuditTargetType string

const (
	AuditTargetCertificate   AuditTargetType = "certificate"
	AuditTargetAttendance    AuditTargetType = "attendance_scan"
	AuditTargetParticipation AuditTargetType = "participation"
)

// Valid returns true when the target is supported.
func (t AuditTargetType) Valid() bool {
	switch t {
	case AuditTargetCertificate, AuditTargetAttendance, AuditTargetParticipation:
		return true
	default:
		return false
	}
}

// AuditEntry is an immutable ledger row. RecordHash covers the content and PrevHash.
type AuditEntry struct {
	Sequence    int64           `db:"seq" json:"sequence"`
	ID          string          `db:"id" json:"id"`
	ActionType  AuditActionType `db:"action_type" json:"action_type"`
	TargetType  AuditTargetType `db:"target_type" json:"target_type"`
	TargetID    string          `db:"target_id" json:"target_id"`
	EventID     string          `db:"event_id" json:"event_id"`
	StudentID   string          `db:"student_id" json:"student_id"`
	PerformedBy string          `db:"performed_by" json:"performed_by"`
	Timestamp   time.Time       `db:"created_at" json:"timestamp"`
	OldState    JSONState       `db:"old_state" json:"old_state"`
	NewState    JSONState       `db:"new_state" json:"new_state"`
	Reason      string          `db:"reason" json:"reason"`
	PrevHash    string          `db:"prev_hash" json:"prev_hash"`
	RecordHash  string          `db:"record_hash" json:"record_hash"`
}

// AuditTarget identifies the fact being changed.
type AuditTarget struct {
	Type      AuditTargetType
	ID        string
	EventID   string
	StudentID string
}

// AuditSummary is a grouped count over a history.
type AuditSummary struct {
	TotalChanges  int `json:"total_changes"`
	Revocations   int `json:"revocations"`
	Invalidations int `json:"invalidations"`
	Corrections   int `json:"corrections"`
}

// Summarize counts entries by action type.
func Summarize(entries []AuditEntry) AuditSummary {
	summary := AuditSummary{TotalChanges: len(entries)}
	for _, e := range entries {
		switch e.ActionType {
		case AuditActionRevocation:
			summary.Revocations++
		case AuditActionInvalidation:
			summary.Invalidations++
		case AuditActionCorrection:
			summary.Corrections++
		}
	}
	return summary
}

// ChainReport describes the outcome of walking the audit hash chain.
type ChainReport struct {
	Valid         bool   `json:"valid"`
	EntriesHashed int    `json:"entries_checked"`
	BrokenAt      *int64 `json:"broken_at_sequence,omitempty"`
	Message       string `json:"message"`
}
