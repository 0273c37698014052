package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/unipass-integrity-api/internal/models"
)

// EventRepository reads the event, student, registration and role facts owned by the CRUD modules.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository constructs the repository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// GetByID fetches an event.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*models.Event, error) {
	const query = `SELECT id, title, start_time, end_time FROM events WHERE id = $1`
	var event models.Event
	if err := r.db.GetContext(ctx, &event, query, id); err != nil {
		return nil, err
	}
	return &event, nil
}

// ListByIDs fetches several events at once.
func (r *EventRepository) ListByIDs(ctx context.Context, ids []string) ([]models.Event, error) {
	if len(ids) == 0 {
		return []models.Event{}, nil
	}
	const query = `SELECT id, title, start_time, end_time FROM events WHERE id = ANY($1)`
	var events []models.Event
	if err := r.db.SelectContext(ctx, &events, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list events by ids: %w", err)
	}
	return events, nil
}

// GetStudent fetches a student.
func (r *EventRepository) GetStudent(ctx context.Context, id string) (*models.Student, error) {
	const query = `SELECT id, name FROM students WHERE id = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// ListRegistrations returns the registrations of an event.
func (r *EventRepository) ListRegistrations(ctx context.Context, eventID string) ([]models.Registration, error) {
	const query = `SELECT student_id, event_id, registered_at FROM registrations WHERE event_id = $1 ORDER BY student_id`
	var regs []models.Registration
	if err := r.db.SelectContext(ctx, &regs, query, eventID); err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	return regs, nil
}

// ListRegistrationsByStudents returns every registration held by the given students.
func (r *EventRepository) ListRegistrationsByStudents(ctx context.Context, studentIDs []string) ([]models.Registration, error) {
	if len(studentIDs) == 0 {
		return []models.Registration{}, nil
	}
	const query = `SELECT student_id, event_id, registered_at FROM registrations WHERE student_id = ANY($1) ORDER BY registered_at`
	var regs []models.Registration
	if err := r.db.SelectContext(ctx, &regs, query, pq.Array(studentIDs)); err != nil {
		return nil, fmt.Errorf("list registrations by students: %w", err)
	}
	return regs, nil
}

// ListRoles returns the role assignments of an event.
func (r *EventRepository) ListRoles(ctx context.Context, eventID string) ([]models.RoleAssignment, error) {
	const query = `SELECT student_id, event_id, role FROM participation_roles WHERE event_id = $1`
	var roles []models.RoleAssignment
	if err := r.db.SelectContext(ctx, &roles, query, eventID); err != nil {
		return nil, fmt.Errorf("list participation roles: %w", err)
	}
	return roles, nil
}

// Watermark fingerprints the fact rows of an event so cached reports can be keyed on them.
func (r *EventRepository) Watermark(ctx context.Context, eventID string) (*models.FactWatermark, error) {
	const query = `SELECT e.start_time, e.end_time,
       (SELECT md5(COALESCE(string_agg(concat_ws(':', student_id, registered_at), ',' ORDER BY student_id), ''))
          FROM registrations WHERE event_id = e.id) AS registrations_digest,
       (SELECT md5(COALESCE(string_agg(concat_ws(':', student_id, role), ',' ORDER BY student_id, role), ''))
          FROM participation_roles WHERE event_id = e.id) AS roles_digest,
       (SELECT md5(COALESCE(string_agg(concat_ws(':', id, student_id, scanned_at, source, invalidated), ',' ORDER BY id), ''))
          FROM attendance_scans WHERE event_id = e.id) AS scans_digest,
       (SELECT md5(COALESCE(string_agg(concat_ws(':', id, student_id, issued_at, revoked), ',' ORDER BY id), ''))
          FROM certificates WHERE event_id = e.id) AS certificates_digest,
       (SELECT COALESCE(MAX(seq), 0) FROM audit_entries WHERE event_id = e.id) AS last_audit_seq
FROM events e
WHERE e.id = $1`
	var w models.FactWatermark
	if err := r.db.GetContext(ctx, &w, query, eventID); err != nil {
		return nil, err
	}
	return &w, nil
}
