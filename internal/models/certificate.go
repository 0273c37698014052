package models

import "time"

// Certificate is an issued participation certificate.
type Certificate struct {
	ID               string     `db:"id" json:"id"`
	StudentID        string     `db:"student_id" json:"student_id"`
	EventID          string     `db:"event_id" json:"event_id"`
	IssuedAt         time.Time  `db:"issued_at" json:"issued_at"`
	VerificationHash string     `db:"verification_hash" json:"-"`
	Revoked          bool       `db:"revoked" json:"revoked"`
	RevocationReason *string    `db:"revocation_reason" json:"revocation_reason,omitempty"`
	RevokedAt        *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	RevokedBy        *string    `db:"revoked_by" json:"revoked_by,omitempty"`
}

// CertificateState is the audited view of a certificate's mutable fields.
type CertificateState struct {
	Revoked          bool       `json:"revoked"`
	RevocationReason *string    `json:"revocation_reason,omitempty"`
	RevokedAt        *time.Time `json:"revoked_at,omitempty"`
}

// State returns the audited fields of the certificate.
func (c Certificate) State() CertificateState {
	return CertificateState{Revoked: c.Revoked, RevocationReason: c.RevocationReason, RevokedAt: c.RevokedAt}
}

// CertificateVerification records one verification attempt.
type CertificateVerification struct {
	ID            string    `db:"id" json:"id"`
	CertificateID string    `db:"certificate_id" json:"certificate_id"`
	EventID       string    `db:"event_id" json:"event_id"`
	VerifiedAt    time.Time `db:"verified_at" json:"verified_at"`
	Authentic     bool      `db:"authentic" json:"authentic"`
	Revoked       bool      `db:"revoked" json:"revoked"`
	ClientIP      string    `db:"client_ip" json:"client_ip"`
}

// VerificationResult is the outcome of recomputing a certificate hash.
type VerificationResult struct {
	Authentic        bool    `json:"authentic"`
	Revoked          bool    `json:"revoked"`
	RevocationReason *string `json:"revocation_reason,omitempty"`
}

// IssuedCertificate is returned by issuance.
type IssuedCertificate struct {
	ID               string    `json:"id"`
	StudentID        string    `json:"student_id"`
	EventID          string    `json:"event_id"`
	IssuedAt         time.Time `json:"issued_at"`
	VerificationHash string    `json:"verification_hash"`
}

// CertificateStats summarises issuance for an event.
type CertificateStats struct {
	EventID         string `json:"event_id"`
	Registered      int    `json:"total_registered"`
	Attended        int    `json:"total_attended"`
	Issued          int    `json:"total_certificates_issued"`
	Revoked         int    `json:"total_revoked"`
	Pending         int    `json:"pending_certificates"`
	CanIssuePending bool   `json:"can_push_certificates"`
}
