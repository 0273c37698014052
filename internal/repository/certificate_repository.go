package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/unipass-integrity-api/internal/models"
)

const certificateColumns = `id, student_id, event_id, issued_at, verification_hash, revoked, revocation_reason, revoked_at, revoked_by`

// CertificateRepository persists issued certificates and their verification log.
type CertificateRepository struct {
	db *sqlx.DB
}

// NewCertificateRepository constructs the repository.
func NewCertificateRepository(db *sqlx.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

const insertCertificate = `INSERT INTO certificates (id, student_id, event_id, issued_at, verification_hash, revoked)
	VALUES (:id, :student_id, :event_id, :issued_at, :verification_hash, FALSE)`

// certificatePairLock namespaces the per-pair advisory locks taken while issuing.
const certificatePairLock = 7281002

// Create inserts a certificate. A live certificate already held by the pair yields
// ErrDuplicate; concurrent issuers of the same pair are serialised on an advisory lock.
func (r *CertificateRepository) Create(ctx context.Context, cert *models.Certificate) error {
	return r.insertLive(ctx, []*models.Certificate{cert})
}

// CreateBatch inserts certificates atomically under the same rule as Create.
func (r *CertificateRepository) CreateBatch(ctx context.Context, certs []models.Certificate) error {
	if len(certs) == 0 {
		return nil
	}
	ptrs := make([]*models.Certificate, len(certs))
	for i := range certs {
		ptrs[i] = &certs[i]
	}
	return r.insertLive(ctx, ptrs)
}

func (r *CertificateRepository) insertLive(ctx context.Context, certs []*models.Certificate) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin certificate insert: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// lock in a fixed order so overlapping batches cannot deadlock
	ordered := append([]*models.Certificate(nil), certs...)
	sort.Slice(ordered, func(i, j int) bool { return pairKey(ordered[i]) < pairKey(ordered[j]) })
	for _, cert := range ordered {
		if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1, hashtext($2))`, certificatePairLock, pairKey(cert)); err != nil {
			return fmt.Errorf("lock certificate pair: %w", err)
		}
		var live bool
		const exists = `SELECT EXISTS (SELECT 1 FROM certificates WHERE event_id = $1 AND student_id = $2 AND NOT revoked)`
		if err = tx.GetContext(ctx, &live, exists, cert.EventID, cert.StudentID); err != nil {
			return fmt.Errorf("check live certificate: %w", err)
		}
		if live {
			err = ErrDuplicate
			return err
		}
	}

	for _, cert := range certs {
		if _, err = tx.NamedExecContext(ctx, insertCertificate, cert); err != nil {
			if isUniqueViolation(err) {
				err = ErrDuplicate
				return err
			}
			return fmt.Errorf("insert certificate: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit certificate insert: %w", err)
	}
	return nil
}

func pairKey(cert *models.Certificate) string {
	return cert.EventID + ":" + cert.StudentID
}

// GetByID fetches a certificate.
func (r *CertificateRepository) GetByID(ctx context.Context, id string) (*models.Certificate, error) {
	query := `SELECT ` + certificateColumns + ` FROM certificates WHERE id = $1`
	var cert models.Certificate
	if err := r.db.GetContext(ctx, &cert, query, id); err != nil {
		return nil, err
	}
	return &cert, nil
}

// ListByEvent returns every certificate of an event, revoked ones included.
func (r *CertificateRepository) ListByEvent(ctx context.Context, eventID string) ([]models.Certificate, error) {
	query := `SELECT ` + certificateColumns + ` FROM certificates WHERE event_id = $1 ORDER BY issued_at, id`
	var certs []models.Certificate
	if err := r.db.SelectContext(ctx, &certs, query, eventID); err != nil {
		return nil, fmt.Errorf("list certificates by event: %w", err)
	}
	return certs, nil
}

// ListByStudent returns the certificates of one (event, student) pair.
func (r *CertificateRepository) ListByStudent(ctx context.Context, eventID, studentID string) ([]models.Certificate, error) {
	query := `SELECT ` + certificateColumns + ` FROM certificates WHERE event_id = $1 AND student_id = $2 ORDER BY issued_at, id`
	var certs []models.Certificate
	if err := r.db.SelectContext(ctx, &certs, query, eventID, studentID); err != nil {
		return nil, fmt.Errorf("list certificates by student: %w", err)
	}
	return certs, nil
}

// RevokeWithAudit revokes the certificate and appends entry in the same transaction.
// entry supplies the actor, reason and timestamp; target and state fields are filled here.
func (r *CertificateRepository) RevokeWithAudit(ctx context.Context, id string, entry *models.AuditEntry) (_ *models.Certificate, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin revoke certificate: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var cert models.Certificate
	query := `SELECT ` + certificateColumns + ` FROM certificates WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &cert, query, id); err != nil {
		return nil, err
	}
	if cert.Revoked {
		err = ErrAlreadyApplied
		return nil, err
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	before := cert.State()
	when := entry.Timestamp.UTC().Truncate(time.Microsecond)
	reason, by := entry.Reason, entry.PerformedBy
	cert.Revoked = true
	cert.RevocationReason = &reason
	cert.RevokedAt = &when
	cert.RevokedBy = &by

	const update = `UPDATE certificates
	SET revoked = TRUE, revocation_reason = $2, revoked_at = $3, revoked_by = $4
	WHERE id = $1`
	if _, err = tx.ExecContext(ctx, update, cert.ID, reason, when, by); err != nil {
		return nil, fmt.Errorf("revoke certificate: %w", err)
	}

	entry.ActionType = models.AuditActionRevocation
	entry.TargetType = models.AuditTargetCertificate
	entry.TargetID = cert.ID
	entry.EventID = cert.EventID
	entry.StudentID = cert.StudentID
	entry.Timestamp = when
	if entry.OldState, err = models.NewJSONState(before); err != nil {
		return nil, fmt.Errorf("encode certificate state: %w", err)
	}
	if entry.NewState, err = models.NewJSONState(cert.State()); err != nil {
		return nil, fmt.Errorf("encode certificate state: %w", err)
	}
	if err = appendAuditEntry(ctx, tx, entry); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit revoke certificate: %w", err)
	}
	return &cert, nil
}

// RecordVerification appends one verification attempt.
func (r *CertificateRepository) RecordVerification(ctx context.Context, v *models.CertificateVerification) error {
	const query = `INSERT INTO certificate_verifications (id, certificate_id, event_id, verified_at, authentic, revoked, client_ip)
	VALUES (:id, :certificate_id, :event_id, :verified_at, :authentic, :revoked, :client_ip)`
	if _, err := r.db.NamedExecContext(ctx, query, v); err != nil {
		return fmt.Errorf("record certificate verification: %w", err)
	}
	return nil
}

// ListVerifications returns the verification attempts against an event's certificates.
func (r *CertificateRepository) ListVerifications(ctx context.Context, eventID string) ([]models.CertificateVerification, error) {
	const query = `SELECT id, certificate_id, event_id, verified_at, authentic, revoked, client_ip
	FROM certificate_verifications WHERE event_id = $1 ORDER BY verified_at`
	var out []models.CertificateVerification
	if err := r.db.SelectContext(ctx, &out, query, eventID); err != nil {
		return nil, fmt.Errorf("list certificate verifications: %w", err)
	}
	return out, nil
}
