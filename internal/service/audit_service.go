package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/unipass-integrity-api/internal/dto"
	"github.com/noah-isme/unipass-integrity-api/internal/ledger"
	"github.com/noah-isme/unipass-integrity-api/internal/models"
	"github.com/noah-isme/unipass-integrity-api/internal/projection"
	"github.com/noah-isme/unipass-integrity-api/internal/repository"
	appErrors "github.com/noah-isme/unipass-integrity-api/pkg/errors"
)

const chainPageSize = 1000

type auditStore interface {
	auditReader
	Append(ctx context.Context, entry *models.AuditEntry) error
	ListPage(ctx context.Context, afterSeq int64, limit int) ([]models.AuditEntry, error)
}

// AuditService owns the append-only audit ledger and the mutations that write to it.
type AuditService struct {
	audit     auditStore
	scans     scanStore
	facts     *FactLoader
	projector *projection.Projector
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewAuditService constructs the service.
func NewAuditService(audit auditStore, scans scanStore, facts *FactLoader, projector *projection.Projector, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *AuditService {
	if projector == nil {
		projector = projection.New(nil)
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{
		audit:     audit,
		scans:     scans,
		facts:     facts,
		projector: projector,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// ParticipationTargetID is the target id of an entry correcting a (student, event) pair.
func ParticipationTargetID(eventID, studentID string) string {
	return eventID + ":" + studentID
}

// Record appends one entry. The reason is mandatory and the target must be a known kind.
func (s *AuditService) Record(ctx context.Context, req dto.RecordAuditRequest) (*models.AuditEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	if !req.ActionType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown audit action type")
	}
	if !req.Target.Type.Valid() || req.Target.ID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown audit target")
	}

	entry := &models.AuditEntry{
		ActionType:  req.ActionType,
		TargetType:  req.Target.Type,
		TargetID:    req.Target.ID,
		EventID:     req.Target.EventID,
		StudentID:   req.Target.StudentID,
		PerformedBy: req.PerformedBy,
		Timestamp:   s.now(),
		Reason:      req.Reason,
	}
	var err error
	if entry.OldState, err = models.NewJSONState(req.OldState); err != nil {
		return nil, validationError(err)
	}
	if entry.NewState, err = models.NewJSONState(req.NewState); err != nil {
		return nil, validationError(err)
	}

	if err := s.audit.Append(ctx, entry); err != nil {
		return nil, storeError(s.logger, err, nil, "failed to append audit entry")
	}
	s.metrics.AuditAppended(string(entry.ActionType))
	s.cache.InvalidateEvent(ctx, entry.EventID)
	return entry, nil
}

// History returns the ledger of a pair, oldest first.
func (s *AuditService) History(ctx context.Context, eventID, studentID string) (*dto.AuditHistory, error) {
	entries, err := s.audit.ListByStudent(ctx, eventID, studentID)
	if err != nil {
		return nil, storeError(s.logger, err, nil, "failed to load audit history")
	}
	return &dto.AuditHistory{
		EventID:   eventID,
		StudentID: studentID,
		Entries:   entries,
		Summary:   models.Summarize(entries),
	}, nil
}

// EventSummary counts the changes recorded against an event.
func (s *AuditService) EventSummary(ctx context.Context, eventID string) (*dto.EventAuditSummary, error) {
	if _, err := s.facts.Event(ctx, eventID); err != nil {
		return nil, err
	}
	entries, err := s.audit.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, storeError(s.logger, err, nil, "failed to load audit entries")
	}

	students := make(map[string]struct{})
	for _, e := range entries {
		if e.StudentID != "" {
			students[e.StudentID] = struct{}{}
		}
	}
	return &dto.EventAuditSummary{EventID: eventID, Summary: models.Summarize(entries), StudentsAffected: len(students)}, nil
}

// SnapshotAt rebuilds the participation view of a pair as it stood at time at.
func (s *AuditService) SnapshotAt(ctx context.Context, eventID, studentID string, at time.Time) (*dto.ParticipationSnapshot, error) {
	if at.IsZero() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "snapshot time is required")
	}
	ef, entries, err := s.pairFacts(ctx, eventID, studentID)
	if err != nil {
		return nil, err
	}
	snap := s.snapshot(ef, entries, studentID, at)
	return &snap, nil
}

// CompareSnapshots rebuilds the view of a pair at from and at to and reports the fields that moved.
func (s *AuditService) CompareSnapshots(ctx context.Context, eventID, studentID string, from, to time.Time) (*dto.SnapshotComparison, error) {
	if from.IsZero() || to.IsZero() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "both snapshot times are required")
	}
	if to.Before(from) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "to must not precede from")
	}
	ef, entries, err := s.pairFacts(ctx, eventID, studentID)
	if err != nil {
		return nil, err
	}

	before := s.snapshot(ef, entries, studentID, from)
	after := s.snapshot(ef, entries, studentID, to)
	changes, err := projection.Diff(before.Reconciliation, after.Reconciliation)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compare snapshots")
	}
	return &dto.SnapshotComparison{
		EventID:     eventID,
		StudentID:   studentID,
		From:        before,
		To:          after,
		Changes:     changes,
		ElapsedDays: int(to.Sub(from).Hours() / 24),
	}, nil
}

func (s *AuditService) pairFacts(ctx context.Context, eventID, studentID string) (projection.EventFacts, []models.AuditEntry, error) {
	if _, err := s.facts.Event(ctx, eventID); err != nil {
		return projection.EventFacts{}, nil, err
	}
	return s.facts.StudentFacts(ctx, eventID, studentID)
}

func (s *AuditService) snapshot(ef projection.EventFacts, entries []models.AuditEntry, studentID string, at time.Time) dto.ParticipationSnapshot {
	applied := 0
	for _, e := range entries {
		if !e.Timestamp.After(at) {
			applied++
		}
	}
	rewound := projection.AsOf(ef, entries, at)
	rec := s.projector.Reconcile(projection.ForStudent(rewound, studentID))
	return dto.ParticipationSnapshot{At: at.UTC(), EntriesApplied: applied, Reconciliation: rec}
}

// VerifyChain walks the whole ledger page by page and reports the first broken link.
func (s *AuditService) VerifyChain(ctx context.Context) (*models.ChainReport, error) {
	walker := ledger.NewChainWalker()
	var after int64
	for {
		page, err := s.audit.ListPage(ctx, after, chainPageSize)
		if err != nil {
			return nil, storeError(s.logger, err, nil, "failed to read audit ledger")
		}
		if len(page) == 0 || !walker.Walk(page) {
			break
		}
		after = page[len(page)-1].Sequence
		if len(page) < chainPageSize {
			break
		}
	}

	report := walker.Report()
	if !report.Valid {
		s.logger.Warn("audit chain broken", zap.Int64p("sequence", report.BrokenAt), zap.String("detail", report.Message))
	}
	return &report, nil
}

// InvalidateScan marks a scan invalid and records the invalidation atomically.
func (s *AuditService) InvalidateScan(ctx context.Context, scanID string, req dto.InvalidateScanRequest, actor string) (*models.AttendanceScan, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}

	entry := &models.AuditEntry{PerformedBy: actor, Reason: req.Reason, Timestamp: s.now()}
	scan, err := s.scans.InvalidateWithAudit(ctx, scanID, entry)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyApplied) {
			return nil, appErrors.ErrAlreadyInvalidated
		}
		return nil, storeError(s.logger, err, appErrors.Clone(appErrors.ErrNotFound, "attendance scan not found"), "failed to invalidate scan")
	}

	s.metrics.AuditAppended(string(models.AuditActionInvalidation))
	s.cache.InvalidateEvent(ctx, scan.EventID)
	s.logger.Info("attendance scan invalidated", zap.String("scan_id", scan.ID), zap.String("performed_by", actor), zap.Int64("audit_seq", entry.Sequence))
	return scan, nil
}

// Correct overrides the registered or attended facts of a pair. The ledger entry is the
// override; source rows are left untouched.
func (s *AuditService) Correct(ctx context.Context, eventID, studentID string, req dto.CorrectionRequest, actor string) (*models.Reconciliation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	if req.Registered == nil && req.Attended == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "correction must set registered or attended")
	}
	if _, err := s.facts.Event(ctx, eventID); err != nil {
		return nil, err
	}
	if _, err := s.facts.Student(ctx, studentID); err != nil {
		return nil, err
	}

	ef, _, err := s.facts.StudentFacts(ctx, eventID, studentID)
	if err != nil {
		return nil, err
	}
	current := s.projector.Reconcile(projection.ForStudent(ef, studentID))

	before := models.ParticipationState{Registered: current.Registered, Attended: current.Attended}
	after := before
	if req.Registered != nil {
		after.Registered = *req.Registered
	}
	if req.Attended != nil {
		after.Attended = *req.Attended
	}
	if after == before {
		return nil, appErrors.Clone(appErrors.ErrValidation, "correction does not change participation")
	}

	entry, err := s.Record(ctx, dto.RecordAuditRequest{
		ActionType: models.AuditActionCorrection,
		Target: models.AuditTarget{
			Type:      models.AuditTargetParticipation,
			ID:        ParticipationTargetID(eventID, studentID),
			EventID:   eventID,
			StudentID: studentID,
		},
		OldState:    before,
		NewState:    after,
		PerformedBy: actor,
		Reason:      req.Reason,
	})
	if err != nil {
		return nil, err
	}

	ef.Corrections = append(ef.Corrections, *entry)
	rec := s.projector.Reconcile(projection.ForStudent(ef, studentID))
	s.logger.Info("participation corrected", zap.String("event_id", eventID), zap.String("student_id", studentID), zap.String("performed_by", actor))
	return &rec, nil
}
