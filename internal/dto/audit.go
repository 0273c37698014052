package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/unipass-integrity-api/internal/models"
)

// InvalidateScanRequest invalidates an attendance scan.
type InvalidateScanRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

// RecordAuditRequest is the input of a raw ledger append.
type RecordAuditRequest struct {
	ActionType  models.AuditActionType `validate:"required"`
	Target      models.AuditTarget
	OldState    interface{}
	NewState    interface{}
	PerformedBy string `validate:"required"`
	Reason      string `validate:"required,min=3,max=500"`
}

// AuditHistory is the ordered ledger of one pair.
type AuditHistory struct {
	EventID   string              `json:"event_id"`
	StudentID string              `json:"student_id"`
	Entries   []models.AuditEntry `json:"entries"`
	Summary   models.AuditSummary `json:"summary"`
}

// EventAuditSummary aggregates the ledger of one event.
type EventAuditSummary struct {
	EventID          string              `json:"event_id"`
	Summary          models.AuditSummary `json:"summary"`
	StudentsAffected int                 `json:"students_affected"`
}

// ParticipationSnapshot is the participation view reconstructed at a point in time.
type ParticipationSnapshot struct {
	At             time.Time             `json:"at"`
	EntriesApplied int                   `json:"entries_applied"`
	Reconciliation models.Reconciliation `json:"reconciliation"`
}

// SnapshotComparison lists what changed in a participation view between two points in time.
type SnapshotComparison struct {
	EventID     string                        `json:"event_id"`
	StudentID   string                        `json:"student_id"`
	From        ParticipationSnapshot         `json:"from"`
	To          ParticipationSnapshot         `json:"to"`
	Changes     map[string]models.FieldChange `json:"changes"`
	ElapsedDays int                           `json:"elapsed_days"`
}

// AppendAuditRequest is the HTTP body of a raw ledger append. The actor comes from the token.
type AppendAuditRequest struct {
	ActionType models.AuditActionType `json:"action_type" binding:"required"`
	TargetType models.AuditTargetType `json:"target_type" binding:"required"`
	TargetID   string                 `json:"target_id" binding:"required"`
	EventID    string                 `json:"event_id"`
	StudentID  string                 `json:"student_id"`
	OldState   json.RawMessage        `json:"old_state"`
	NewState   json.RawMessage        `json:"new_state"`
	Reason     string                 `json:"reason" binding:"required"`
}
