package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Event is the subset of an event owned by the event CRUD module that the engine reads.
type Event struct {
	ID        string    `db:"id" json:"id"`
	Title     string    `db:"title" json:"title"`
	StartTime time.Time `db:"start_time" json:"start_time"`
	EndTime   time.Time `db:"end_time" json:"end_time"`
}

// Duration returns the scheduled length of the event.
func (e Event) Duration() time.Duration {
	return e.EndTime.Sub(e.StartTime)
}

// Student identifies a student by PRN.
type Student struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// Registration is a self-service registration (ticket) for an event.
type Registration struct {
	StudentID    string    `db:"student_id" json:"student_id"`
	EventID      string    `db:"event_id" json:"event_id"`
	RegisteredAt time.Time `db:"registered_at" json:"registered_at"`
}

// RoleAssignment links a student to one event-level role.
type RoleAssignment struct {
	StudentID string   `db:"student_id" json:"student_id"`
	EventID   string   `db:"event_id" json:"event_id"`
	Role      RoleType `db:"role" json:"role"`
}

// FactWatermark fingerprints every source row of an event. Inserting, deleting, invalidating
// or revoking a fact, or appending to the ledger, changes at least one field.
type FactWatermark struct {
	EventStart          time.Time `db:"start_time"`
	EventEnd            time.Time `db:"end_time"`
	RegistrationsDigest string    `db:"registrations_digest"`
	RolesDigest         string    `db:"roles_digest"`
	ScansDigest         string    `db:"scans_digest"`
	CertificatesDigest  string    `db:"certificates_digest"`
	LastAuditSeq        int64     `db:"last_audit_seq"`
}

// Key condenses the watermark into a short cache-key suffix.
func (w FactWatermark) Key() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%d|%s|%s|%s|%s|%d",
		w.EventStart.UnixMicro(), w.EventEnd.UnixMicro(),
		w.RegistrationsDigest, w.RolesDigest, w.ScansDigest, w.CertificatesDigest, w.LastAuditSeq)))
	return hex.EncodeToString(sum[:8])
}
