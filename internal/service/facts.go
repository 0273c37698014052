package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/unipass-integrity-api/internal/models"
	"github.com/noah-isme/unipass-integrity-api/internal/projection"
	appErrors "github.com/noah-isme/unipass-integrity-api/pkg/errors"
)

type eventReader interface {
	GetByID(ctx context.Context, id string) (*models.Event, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.Event, error)
	GetStudent(ctx context.Context, id string) (*models.Student, error)
	ListRegistrations(ctx context.Context, eventID string) ([]models.Registration, error)
	ListRegistrationsByStudents(ctx context.Context, studentIDs []string) ([]models.Registration, error)
	ListRoles(ctx context.Context, eventID string) ([]models.RoleAssignment, error)
	Watermark(ctx context.Context, eventID string) (*models.FactWatermark, error)
}

type scanStore interface {
	GetByID(ctx context.Context, id string) (*models.AttendanceScan, error)
	ListByEvent(ctx context.Context, eventID string) ([]models.AttendanceScan, error)
	ListByStudents(ctx context.Context, studentIDs []string) ([]models.AttendanceScan, error)
	ListSince(ctx context.Context, since time.Time) ([]models.AttendanceScan, error)
	CountsByStudents(ctx context.Context, studentIDs []string) ([]models.ScanCounts, error)
	InvalidateWithAudit(ctx context.Context, scanID string, entry *models.AuditEntry) (*models.AttendanceScan, error)
}

type certificateReader interface {
	GetByID(ctx context.Context, id string) (*models.Certificate, error)
	ListByEvent(ctx context.Context, eventID string) ([]models.Certificate, error)
	ListByStudent(ctx context.Context, eventID, studentID string) ([]models.Certificate, error)
}

type auditReader interface {
	ListByStudent(ctx context.Context, eventID, studentID string) ([]models.AuditEntry, error)
	ListByEvent(ctx context.Context, eventID string) ([]models.AuditEntry, error)
}

// FactLoader reads the source rows the projections are computed from.
type FactLoader struct {
	events  eventReader
	scans   scanStore
	certs   certificateReader
	audit   auditReader
	metrics *MetricsService
	logger  *zap.Logger
}

// NewFactLoader wires the fact store readers.
func NewFactLoader(events eventReader, scans scanStore, certs certificateReader, audit auditReader, logger *zap.Logger) *FactLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FactLoader{events: events, scans: scans, certs: certs, audit: audit, logger: logger}
}

// Instrument records load timings on metrics.
func (l *FactLoader) Instrument(metrics *MetricsService) *FactLoader {
	l.metrics = metrics
	return l
}

// Event returns the event or NOT_FOUND.
func (l *FactLoader) Event(ctx context.Context, eventID string) (*models.Event, error) {
	event, err := l.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, storeError(l.logger, err, appErrors.Clone(appErrors.ErrNotFound, "event not found"), "failed to load event")
	}
	return event, nil
}

// Student returns the student or NOT_FOUND.
func (l *FactLoader) Student(ctx context.Context, studentID string) (*models.Student, error) {
	student, err := l.events.GetStudent(ctx, studentID)
	if err != nil {
		return nil, storeError(l.logger, err, appErrors.Clone(appErrors.ErrNotFound, "student not found"), "failed to load student")
	}
	return student, nil
}

// Watermark fingerprints the facts of an event.
func (l *FactLoader) Watermark(ctx context.Context, eventID string) (*models.FactWatermark, error) {
	start := time.Now()
	defer func() { l.metrics.ObserveDBQuery("fact_watermark", time.Since(start)) }()

	w, err := l.events.Watermark(ctx, eventID)
	if err != nil {
		return nil, storeError(l.logger, err, appErrors.Clone(appErrors.ErrNotFound, "event not found"), "failed to load fact watermark")
	}
	return w, nil
}

// EventFacts loads every row of one event. The ledger is returned whole so callers can
// replay it; Corrections holds only its correction entries.
func (l *FactLoader) EventFacts(ctx context.Context, eventID string) (projection.EventFacts, []models.AuditEntry, error) {
	start := time.Now()
	defer func() { l.metrics.ObserveDBQuery("event_facts", time.Since(start)) }()

	ef := projection.EventFacts{EventID: eventID}
	var ledgerEntries []models.AuditEntry

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		ef.Registrations, err = l.events.ListRegistrations(gctx, eventID)
		return err
	})
	g.Go(func() (err error) {
		ef.Scans, err = l.scans.ListByEvent(gctx, eventID)
		return err
	})
	g.Go(func() (err error) {
		ef.Certificates, err = l.certs.ListByEvent(gctx, eventID)
		return err
	})
	g.Go(func() (err error) {
		ef.Roles, err = l.events.ListRoles(gctx, eventID)
		return err
	})
	g.Go(func() (err error) {
		ledgerEntries, err = l.audit.ListByEvent(gctx, eventID)
		return err
	})
	if err := g.Wait(); err != nil {
		return ef, nil, storeError(l.logger, err, nil, "failed to load event facts")
	}

	ef.Corrections = corrections(ledgerEntries)
	return ef, ledgerEntries, nil
}

// StudentFacts loads the rows of one pair without reading the whole event.
func (l *FactLoader) StudentFacts(ctx context.Context, eventID, studentID string) (projection.EventFacts, []models.AuditEntry, error) {
	start := time.Now()
	defer func() { l.metrics.ObserveDBQuery("student_facts", time.Since(start)) }()

	ef := projection.EventFacts{EventID: eventID}
	var (
		registrations []models.Registration
		scans         []models.AttendanceScan
		roles         []models.RoleAssignment
		ledgerEntries []models.AuditEntry
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		registrations, err = l.events.ListRegistrationsByStudents(gctx, []string{studentID})
		return err
	})
	g.Go(func() (err error) {
		scans, err = l.scans.ListByStudents(gctx, []string{studentID})
		return err
	})
	g.Go(func() (err error) {
		ef.Certificates, err = l.certs.ListByStudent(gctx, eventID, studentID)
		return err
	})
	g.Go(func() (err error) {
		roles, err = l.events.ListRoles(gctx, eventID)
		return err
	})
	g.Go(func() (err error) {
		ledgerEntries, err = l.audit.ListByStudent(gctx, eventID, studentID)
		return err
	})
	if err := g.Wait(); err != nil {
		return ef, nil, storeError(l.logger, err, nil, "failed to load participation facts")
	}

	for _, r := range registrations {
		if r.EventID == eventID {
			ef.Registrations = append(ef.Registrations, r)
		}
	}
	for _, s := range scans {
		if s.EventID == eventID {
			ef.Scans = append(ef.Scans, s)
		}
	}
	for _, r := range roles {
		if r.StudentID == studentID {
			ef.Roles = append(ef.Roles, r)
		}
	}
	ef.Corrections = corrections(ledgerEntries)
	return ef, ledgerEntries, nil
}

func corrections(entries []models.AuditEntry) []models.AuditEntry {
	out := make([]models.AuditEntry, 0)
	for _, e := range entries {
		if e.ActionType == models.AuditActionCorrection && e.TargetType == models.AuditTargetParticipation {
			out = append(out, e)
		}
	}
	return out
}
