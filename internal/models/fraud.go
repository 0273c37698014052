package models

// FraudType names a heuristic rule.
type FraudType string

const (
	FraudDuplicateCertificate FraudType = "DUPLICATE_CERTIFICATE"
	FraudOrphanCertificate    FraudType = "CERTIFICATE_WITHOUT_ATTENDANCE"
	FraudPrematureCertificate FraudType = "CERTIFICATE_BEFORE_EVENT_END"
	FraudRevokedStillInUse    FraudType = "REVOKED_STILL_IN_USE"
	FraudOverrideAbuse        FraudType = "MANUAL_OVERRIDE_ABUSE"
	FraudBulkAnomaly          FraudType = "BULK_ISSUANCE_ANOMALY"
	FraudRapidScans           FraudType = "MULTIPLE_SCANS_SAME_MINUTE"
)

// AllStudents is the student id used by event-wide alerts.
const AllStudents = "ALL"

// FraudAlert is a derived, non-persistent heuristic finding.
type FraudAlert struct {
	Type           FraudType              `json:"type"`
	Severity       Severity               `json:"severity"`
	StudentID      string                 `json:"student_id"`
	EventID        string                 `json:"event_id"`
	Description    string                 `json:"description"`
	Evidence       map[string]interface{} `json:"evidence"`
	Recommendation string                 `json:"recommendation"`
}

// FraudSummary counts alerts by severity.
type FraudSummary struct {
	TotalAlerts   int         `json:"total_alerts"`
	High          int         `json:"high_severity"`
	Medium        int         `json:"medium_severity"`
	Low           int         `json:"low_severity"`
	CriticalTypes []FraudType `json:"critical_types"`
}

// FraudReport is the output of a scan over one event.
type FraudReport struct {
	EventID string       `json:"event_id"`
	Alerts  []FraudAlert `json:"fraud_alerts"`
	Summary FraudSummary `json:"summary"`
}
