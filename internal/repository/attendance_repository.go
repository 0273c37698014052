package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/unipass-integrity-api/internal/models"
)

const scanColumns = `id, student_id, event_id, scanned_at, source, invalidated, invalidation_reason, invalidated_at, invalidated_by`

// AttendanceRepository reads attendance scans and applies audited invalidations.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// GetByID fetches one scan.
func (r *AttendanceRepository) GetByID(ctx context.Context, id string) (*models.AttendanceScan, error) {
	query := `SELECT ` + scanColumns + ` FROM attendance_scans WHERE id = $1`
	var scan models.AttendanceScan
	if err := r.db.GetContext(ctx, &scan, query, id); err != nil {
		return nil, err
	}
	return &scan, nil
}

// ListByEvent returns every scan of an event including invalidated ones.
func (r *AttendanceRepository) ListByEvent(ctx context.Context, eventID string) ([]models.AttendanceScan, error) {
	query := `SELECT ` + scanColumns + ` FROM attendance_scans WHERE event_id = $1 ORDER BY scanned_at, id`
	var scans []models.AttendanceScan
	if err := r.db.SelectContext(ctx, &scans, query, eventID); err != nil {
		return nil, fmt.Errorf("list scans by event: %w", err)
	}
	return scans, nil
}

// ListByStudents returns the scans of the given students across all events.
func (r *AttendanceRepository) ListByStudents(ctx context.Context, studentIDs []string) ([]models.AttendanceScan, error) {
	if len(studentIDs) == 0 {
		return []models.AttendanceScan{}, nil
	}
	query := `SELECT ` + scanColumns + ` FROM attendance_scans WHERE student_id = ANY($1) ORDER BY scanned_at, id`
	var scans []models.AttendanceScan
	if err := r.db.SelectContext(ctx, &scans, query, pq.Array(studentIDs)); err != nil {
		return nil, fmt.Errorf("list scans by students: %w", err)
	}
	return scans, nil
}

// ListSince returns valid scans captured at or after since, the anomaly training window.
func (r *AttendanceRepository) ListSince(ctx context.Context, since time.Time) ([]models.AttendanceScan, error) {
	query := `SELECT ` + scanColumns + ` FROM attendance_scans WHERE scanned_at >= $1 AND invalidated = FALSE ORDER BY scanned_at, id`
	var scans []models.AttendanceScan
	if err := r.db.SelectContext(ctx, &scans, query, since); err != nil {
		return nil, fmt.Errorf("list scans since: %w", err)
	}
	return scans, nil
}

// CountsByStudents aggregates valid and manual-override scans per student.
func (r *AttendanceRepository) CountsByStudents(ctx context.Context, studentIDs []string) ([]models.ScanCounts, error) {
	if len(studentIDs) == 0 {
		return []models.ScanCounts{}, nil
	}
	const query = `SELECT student_id,
       COUNT(*) AS total,
       COUNT(*) FILTER (WHERE source = 'admin_override') AS overrides
	FROM attendance_scans
	WHERE student_id = ANY($1) AND invalidated = FALSE
	GROUP BY student_id`
	var counts []models.ScanCounts
	if err := r.db.SelectContext(ctx, &counts, query, pq.Array(studentIDs)); err != nil {
		return nil, fmt.Errorf("count scans by students: %w", err)
	}
	return counts, nil
}

// InvalidateWithAudit marks the scan invalidated and appends entry in the same transaction.
// entry supplies the actor, reason and timestamp; target and state fields are filled here.
func (r *AttendanceRepository) InvalidateWithAudit(ctx context.Context, scanID string, entry *models.AuditEntry) (_ *models.AttendanceScan, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin invalidate scan: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var scan models.AttendanceScan
	query := `SELECT ` + scanColumns + ` FROM attendance_scans WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &scan, query, scanID); err != nil {
		return nil, err
	}
	if scan.Invalidated {
		err = ErrAlreadyApplied
		return nil, err
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	before := scan.State()
	when := entry.Timestamp.UTC().Truncate(time.Microsecond)
	reason, by := entry.Reason, entry.PerformedBy
	scan.Invalidated = true
	scan.InvalidationReason = &reason
	scan.InvalidatedAt = &when
	scan.InvalidatedBy = &by

	const update = `UPDATE attendance_scans
	SET invalidated = TRUE, invalidation_reason = $2, invalidated_at = $3, invalidated_by = $4
	WHERE id = $1`
	if _, err = tx.ExecContext(ctx, update, scan.ID, reason, when, by); err != nil {
		return nil, fmt.Errorf("invalidate scan: %w", err)
	}

	entry.ActionType = models.AuditActionInvalidation
	entry.TargetType = models.AuditTargetAttendance
	entry.TargetID = scan.ID
	entry.EventID = scan.EventID
	entry.StudentID = scan.StudentID
	entry.Timestamp = when
	if entry.OldState, err = models.NewJSONState(before); err != nil {
		return nil, fmt.Errorf("encode scan state: %w", err)
	}
	if entry.NewState, err = models.NewJSONState(scan.State()); err != nil {
		return nil, fmt.Errorf("encode scan state: %w", err)
	}
	if err = appendAuditEntry(ctx, tx, entry); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit invalidate scan: %w", err)
	}
	return &scan, nil
}
