package projection

import (
	"time"

	"github.com/noah-isme/unipass-integrity-api/internal/models"
)

// EventFacts are the source rows of one event as read from the fact store.
type EventFacts struct {
	EventID       string
	Registrations []models.Registration
	Scans         []models.AttendanceScan
	Certificates  []models.Certificate
	Roles         []models.RoleAssignment
	Corrections   []models.AuditEntry
}

// Group splits event facts into one Facts per student with any footprint.
func Group(ef EventFacts) []Facts {
	index := make(map[string]int)
	out := make([]Facts, 0, len(ef.Registrations))

	get := func(studentID string) *Facts {
		if i, ok := index[studentID]; ok {
			return &out[i]
		}
		index[studentID] = len(out)
		out = append(out, Facts{StudentID: studentID, EventID: ef.EventID})
		return &out[len(out)-1]
	}

	for _, r := range ef.Registrations {
		get(r.StudentID).Registered = true
	}
	for _, s := range ef.Scans {
		f := get(s.StudentID)
		f.Scans = append(f.Scans, s)
	}
	for _, c := range ef.Certificates {
		f := get(c.StudentID)
		f.Certificates = append(f.Certificates, c)
	}
	for _, e := range ef.Corrections {
		if e.ActionType != models.AuditActionCorrection {
			continue
		}
		f := get(e.StudentID)
		f.Corrections = append(f.Corrections, e)
	}
	// roles annotate pairs but never create one
	for _, r := range ef.Roles {
		if i, ok := index[r.StudentID]; ok {
			out[i].Roles = append(out[i].Roles, r.Role)
		}
	}

	return out
}

// ForStudent extracts the Facts of one student. The result is empty but keyed when nothing matches.
func ForStudent(ef EventFacts, studentID string) Facts {
	for _, f := range Group(ef) {
		if f.StudentID == studentID {
			return f
		}
	}
	return Facts{StudentID: studentID, EventID: ef.EventID}
}

// AsOf rewinds event facts to time at by replaying the audit ledger. Rows created after at are
// dropped, and invalidations or revocations count only when their audit entry precedes at.
func AsOf(ef EventFacts, ledger []models.AuditEntry, at time.Time) EventFacts {
	invalidated := make(map[string]models.AuditEntry)
	revoked := make(map[string]models.AuditEntry)
	corrections := make([]models.AuditEntry, 0)
	for _, e := range ledger {
		if e.Timestamp.After(at) {
			continue
		}
		switch e.ActionType {
		case models.AuditActionInvalidation:
			invalidated[e.TargetID] = e
		case models.AuditActionRevocation:
			revoked[e.TargetID] = e
		case models.AuditActionCorrection:
			corrections = append(corrections, e)
		}
	}

	out := EventFacts{EventID: ef.EventID, Roles: ef.Roles, Corrections: corrections}
	for _, r := range ef.Registrations {
		if !r.RegisteredAt.After(at) {
			out.Registrations = append(out.Registrations, r)
		}
	}
	for _, s := range ef.Scans {
		if s.ScannedAt.After(at) {
			continue
		}
		s.Invalidated = false
		s.InvalidationReason = nil
		s.InvalidatedAt = nil
		s.InvalidatedBy = nil
		if e, ok := invalidated[s.ID]; ok {
			reason, when, by := e.Reason, e.Timestamp, e.PerformedBy
			s.Invalidated = true
			s.InvalidationReason = &reason
			s.InvalidatedAt = &when
			s.InvalidatedBy = &by
		}
		out.Scans = append(out.Scans, s)
	}
	for _, c := range ef.Certificates {
		if c.IssuedAt.After(at) {
			continue
		}
		c.Revoked = false
		c.RevocationReason = nil
		c.RevokedAt = nil
		c.RevokedBy = nil
		if e, ok := revoked[c.ID]; ok {
			reason, when, by := e.Reason, e.Timestamp, e.PerformedBy
			c.Revoked = true
			c.RevocationReason = &reason
			c.RevokedAt = &when
			c.RevokedBy = &by
		}
		out.Certificates = append(out.Certificates, c)
	}
	return out
}
