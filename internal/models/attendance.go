package models

import "time"

// ScanSource identifies how an attendance scan was captured.
type ScanSource string

const (
	ScanSourceQR            ScanSource = "qr_scan"
	ScanSourceAdminOverride ScanSource = "admin_override"
)

// Valid returns true when the source is a supported value.
func (s ScanSource) Valid() bool {
	switch s {
	case ScanSourceQR, ScanSourceAdminOverride:
		return true
	default:
		return false
	}
}

// AttendanceScan is an append-only scan fact. Invalidation marks it, never deletes it.
type AttendanceScan struct {
	ID                 string     `db:"id" json:"id"`
	StudentID          string     `db:"student_id" json:"student_id"`
	EventID            string     `db:"event_id" json:"event_id"`
	ScannedAt          time.Time  `db:"scanned_at" json:"scanned_at"`
	Source             ScanSource `db:"source" json:"source"`
	Invalidated        bool       `db:"invalidated" json:"invalidated"`
	InvalidationReason *string    `db:"invalidation_reason" json:"invalidation_reason,omitempty"`
	InvalidatedAt      *time.Time `db:"invalidated_at" json:"invalidated_at,omitempty"`
	InvalidatedBy      *string    `db:"invalidated_by" json:"invalidated_by,omitempty"`
}

// Counts reports whether the scan contributes to attendance.
func (s AttendanceScan) Counts() bool {
	return !s.Invalidated
}

// ScanState is the audited view of a scan's mutable fields.
type ScanState struct {
	Invalidated        bool    `json:"invalidated"`
	InvalidationReason *string `json:"invalidation_reason,omitempty"`
}

// State returns the audited fields of the scan.
func (s AttendanceScan) State() ScanState {
	return ScanState{Invalidated: s.Invalidated, InvalidationReason: s.InvalidationReason}
}

// ScanCounts aggregates a student's valid scans across all events.
type ScanCounts struct {
	StudentID string `db:"student_id" json:"student_id"`
	Total     int    `db:"total" json:"total"`
	Overrides int    `db:"overrides" json:"overrides"`
}
