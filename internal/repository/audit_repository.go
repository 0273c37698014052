package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/unipass-integrity-api/internal/ledger"
	"github.com/noah-isme/unipass-integrity-api/internal/models"
)

// auditChainLock serialises appends so every entry links to the true chain tail.
const auditChainLock = 7281001

const auditColumns = `seq, id, action_type, target_type, target_id, event_id, student_id, performed_by,
       created_at, old_state, new_state, reason, prev_hash, record_hash`

// AuditRepository reads and appends the audit ledger. Entries are never updated or deleted.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append writes a standalone entry in its own transaction.
func (r *AuditRepository) Append(ctx context.Context, entry *models.AuditEntry) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit append: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = appendAuditEntry(ctx, tx, entry); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit audit append: %w", err)
	}
	return nil
}

// ListByStudent returns the entries of one (event, student) pair, oldest first.
func (r *AuditRepository) ListByStudent(ctx context.Context, eventID, studentID string) ([]models.AuditEntry, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_entries WHERE event_id = $1 AND student_id = $2 ORDER BY seq ASC`
	var entries []models.AuditEntry
	if err := r.db.SelectContext(ctx, &entries, query, eventID, studentID); err != nil {
		return nil, fmt.Errorf("list audit entries by student: %w", err)
	}
	return entries, nil
}

// ListByEvent returns every entry of one event, oldest first.
func (r *AuditRepository) ListByEvent(ctx context.Context, eventID string) ([]models.AuditEntry, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_entries WHERE event_id = $1 ORDER BY seq ASC`
	var entries []models.AuditEntry
	if err := r.db.SelectContext(ctx, &entries, query, eventID); err != nil {
		return nil, fmt.Errorf("list audit entries by event: %w", err)
	}
	return entries, nil
}

// ListPage returns up to limit entries with a sequence greater than afterSeq.
func (r *AuditRepository) ListPage(ctx context.Context, afterSeq int64, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 || limit > 5000 {
		limit = 1000
	}
	query := `SELECT ` + auditColumns + ` FROM audit_entries WHERE seq > $1 ORDER BY seq ASC LIMIT $2`
	var entries []models.AuditEntry
	if err := r.db.SelectContext(ctx, &entries, query, afterSeq, limit); err != nil {
		return nil, fmt.Errorf("list audit page: %w", err)
	}
	return entries, nil
}

// appendAuditEntry seals entry onto the chain tail and inserts it inside tx.
func appendAuditEntry(ctx context.Context, tx *sqlx.Tx, entry *models.AuditEntry) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, auditChainLock); err != nil {
		return fmt.Errorf("lock audit chain: %w", err)
	}

	var prev string
	err := tx.GetContext(ctx, &prev, `SELECT record_hash FROM audit_entries ORDER BY seq DESC LIMIT 1`)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read audit chain tail: %w", err)
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	ledger.Seal(prev, entry)

	const query = `INSERT INTO audit_entries
	(id, action_type, target_type, target_id, event_id, student_id, performed_by, created_at, old_state, new_state, reason, prev_hash, record_hash)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	RETURNING seq`
	if err := tx.QueryRowxContext(ctx, query,
		entry.ID, entry.ActionType, entry.TargetType, entry.TargetID, entry.EventID, entry.StudentID,
		entry.PerformedBy, entry.Timestamp, entry.OldState, entry.NewState, entry.Reason,
		entry.PrevHash, entry.RecordHash,
	).Scan(&entry.Sequence); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}
