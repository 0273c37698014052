package models

// ConflictFlag marks an inconsistency between the participation sources.
type ConflictFlag string

const (
	FlagRegisteredNotAttended ConflictFlag = "registered_not_attended"
	FlagAttendedNotRegistered ConflictFlag = "attended_not_registered"
	FlagCertifiedNotAttended  ConflictFlag = "certified_not_attended"
	FlagAttendedNotCertified  ConflictFlag = "attended_not_certified"
	FlagDuplicateAttendance   ConflictFlag = "duplicate_attendance"
)

// AllConflictFlags lists flags in their canonical reporting order.
var AllConflictFlags = []ConflictFlag{
	FlagRegisteredNotAttended,
	FlagAttendedNotRegistered,
	FlagCertifiedNotAttended,
	FlagAttendedNotCertified,
	FlagDuplicateAttendance,
}

// CanonicalStatus is the single authoritative participation status.
type CanonicalStatus string

const (
	StatusRegisteredOnly        CanonicalStatus = "REGISTERED_ONLY"
	StatusAttendedNoCertificate CanonicalStatus = "ATTENDED_NO_CERTIFICATE"
	StatusCertified             CanonicalStatus = "CERTIFIED"
	StatusInvalidated           CanonicalStatus = "INVALIDATED"
	StatusUnknown               CanonicalStatus = "UNKNOWN"
)

// ParticipationRecord is the derived per-(student, event) view.
type ParticipationRecord struct {
	StudentID  string  `json:"student_id"`
	EventID    string  `json:"event_id"`
	Registered bool    `json:"registered"`
	Attended   bool    `json:"attended"`
	Certified  bool    `json:"certified"`
	Roles      RoleSet `json:"roles"`
}

// ParticipationState is the audited subset of a participation record.
type ParticipationState struct {
	Registered bool `json:"registered"`
	Attended   bool `json:"attended"`
}

// Reconciliation is the trust-scored outcome for one pair.
type Reconciliation struct {
	ParticipationRecord
	Status              CanonicalStatus `json:"canonical_status"`
	ConflictFlags       []ConflictFlag  `json:"conflict_flags"`
	TrustScore          int             `json:"trust_score"`
	AuthoritativeScanID *string         `json:"authoritative_scan_id,omitempty"`
	DuplicateScanIDs    []string        `json:"duplicate_scan_ids,omitempty"`
	ValidScanCount      int             `json:"attendance_count"`
	CertificateID       *string         `json:"certificate_id,omitempty"`
	CertificateRevoked  bool            `json:"certificate_revoked"`
}

// HasFlag reports whether the flag is raised.
func (r Reconciliation) HasFlag(flag ConflictFlag) bool {
	for _, f := range r.ConflictFlags {
		if f == flag {
			return true
		}
	}
	return false
}

// EventReconciliation groups every reconciled pair of one event.
type EventReconciliation struct {
	EventID    string           `json:"event_id"`
	Records    []Reconciliation `json:"records"`
	Conflicted int              `json:"conflicted"`
}

// Conflicts returns only the records with at least one flag.
func (e EventReconciliation) Conflicts() []Reconciliation {
	out := make([]Reconciliation, 0, e.Conflicted)
	for _, r := range e.Records {
		if len(r.ConflictFlags) > 0 {
			out = append(out, r)
		}
	}
	return out
}

// FieldChange is one field that differs between two reconciliations of the same pair.
type FieldChange struct {
	From interface{} `json:"from"`
	To   interface{} `json:"to"`
}
