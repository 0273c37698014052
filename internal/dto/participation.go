package dto

import "github.com/noah-isme/unipass-integrity-api/internal/models"

// CorrectionRequest overrides the registered or attended facts of a pair. Omitted fields keep
// their current value.
type CorrectionRequest struct {
	Registered *bool  `json:"registered"`
	Attended   *bool  `json:"attended"`
	Reason     string `json:"reason" validate:"required,min=3,max=500"`
}

// EventBatchRequest lists the events of a multi-event pass.
type EventBatchRequest struct {
	EventIDs []string `json:"event_ids" validate:"required,min=1,max=100,dive,required"`
}

// ConflictReport lists the flagged pairs of an event.
type ConflictReport struct {
	EventID   string                  `json:"event_id"`
	Total     int                     `json:"total_records"`
	Conflicts []models.Reconciliation `json:"conflicts"`
}

// BatchReconciliationResponse carries one report per requested event, in request order.
type BatchReconciliationResponse struct {
	Events []models.EventReconciliation `json:"events"`
}
