package dto

import (
	"time"

	"github.com/noah-isme/unipass-integrity-api/internal/models"
)

// IssueCertificateRequest issues one certificate.
type IssueCertificateRequest struct {
	StudentID string `json:"student_id" validate:"required,max=64"`
	EventID   string `json:"event_id" validate:"required,max=64"`
}

// BatchIssueRequest controls event-wide issuance.
type BatchIssueRequest struct {
	DryRun bool `json:"dry_run"`
}

// BatchIssueResult reports what event-wide issuance did or would do.
type BatchIssueResult struct {
	EventID  string                     `json:"event_id"`
	DryRun   bool                       `json:"dry_run"`
	Eligible []string                   `json:"eligible_students"`
	Skipped  []string                   `json:"already_certified"`
	Issued   []models.IssuedCertificate `json:"issued"`
}

// RevokeCertificateRequest revokes a certificate.
type RevokeCertificateRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

// PublicVerification is the unauthenticated verification response. It never carries the hash.
type PublicVerification struct {
	Authentic        bool       `json:"authentic"`
	CertificateID    string     `json:"certificate_id"`
	StudentName      *string    `json:"student_name,omitempty"`
	EventTitle       *string    `json:"event_title,omitempty"`
	IssuedAt         *time.Time `json:"issued_at,omitempty"`
	Revoked          bool       `json:"revoked"`
	RevocationReason *string    `json:"revocation_reason,omitempty"`
	Message          string     `json:"message"`
}
