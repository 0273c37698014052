package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/unipass-integrity-api/internal/dto"
	"github.com/noah-isme/unipass-integrity-api/internal/ledger"
	"github.com/noah-isme/unipass-integrity-api/internal/models"
	"github.com/noah-isme/unipass-integrity-api/internal/projection"
	"github.com/noah-isme/unipass-integrity-api/internal/repository"
	appErrors "github.com/noah-isme/unipass-integrity-api/pkg/errors"
)

type certificateStore interface {
	certificateReader
	Create(ctx context.Context, cert *models.Certificate) error
	CreateBatch(ctx context.Context, certs []models.Certificate) error
	RevokeWithAudit(ctx context.Context, id string, entry *models.AuditEntry) (*models.Certificate, error)
	RecordVerification(ctx context.Context, v *models.CertificateVerification) error
}

// CertificateService issues, verifies and revokes participation certificates.
type CertificateService struct {
	certs     certificateStore
	facts     *FactLoader
	projector *projection.Projector
	hasher    *ledger.CertificateHasher
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewCertificateService constructs the service.
func NewCertificateService(certs certificateStore, facts *FactLoader, projector *projection.Projector, hasher *ledger.CertificateHasher, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *CertificateService {
	if projector == nil {
		projector = projection.New(nil)
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CertificateService{
		certs:     certs,
		facts:     facts,
		projector: projector,
		hasher:    hasher,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// Issue creates a certificate for an attended pair. Ineligible pairs fail before any write.
func (s *CertificateService) Issue(ctx context.Context, req dto.IssueCertificateRequest) (*models.IssuedCertificate, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	if _, err := s.facts.Event(ctx, req.EventID); err != nil {
		return nil, err
	}
	if _, err := s.facts.Student(ctx, req.StudentID); err != nil {
		return nil, err
	}

	ef, _, err := s.facts.StudentFacts(ctx, req.EventID, req.StudentID)
	if err != nil {
		return nil, err
	}
	rec := s.projector.Reconcile(projection.ForStudent(ef, req.StudentID))
	if !rec.Attended {
		return nil, appErrors.Clone(appErrors.ErrNotEligible, "student has no valid attendance for this event")
	}
	if rec.Certified {
		return nil, appErrors.Clone(appErrors.ErrConflict, "certificate already issued for this participation")
	}

	cert := s.newCertificate(req.StudentID, req.EventID, ledger.Timestamp(s.now()))
	if err := s.certs.Create(ctx, &cert); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "certificate already issued for this participation")
		}
		return nil, storeError(s.logger, err, nil, "failed to store certificate")
	}

	s.metrics.CertificatesIssued(1)
	s.cache.InvalidateEvent(ctx, req.EventID)
	s.logger.Info("certificate issued", zap.String("certificate_id", cert.ID), zap.String("event_id", cert.EventID), zap.String("student_id", cert.StudentID))

	issued := toIssued(cert)
	return &issued, nil
}

// IssueEvent issues certificates to every attended pair of an event that has none yet.
func (s *CertificateService) IssueEvent(ctx context.Context, eventID string, req dto.BatchIssueRequest) (*dto.BatchIssueResult, error) {
	if _, err := s.facts.Event(ctx, eventID); err != nil {
		return nil, err
	}
	ef, _, err := s.facts.EventFacts(ctx, eventID)
	if err != nil {
		return nil, err
	}
	report := s.projector.ReconcileEvent(eventID, projection.Group(ef))

	result := &dto.BatchIssueResult{
		EventID:  eventID,
		DryRun:   req.DryRun,
		Eligible: make([]string, 0),
		Skipped:  make([]string, 0),
		Issued:   make([]models.IssuedCertificate, 0),
	}
	for _, rec := range report.Records {
		switch {
		case rec.Certified:
			result.Skipped = append(result.Skipped, rec.StudentID)
		case rec.Attended:
			result.Eligible = append(result.Eligible, rec.StudentID)
		}
	}
	if req.DryRun || len(result.Eligible) == 0 {
		return result, nil
	}

	issuedAt := ledger.Timestamp(s.now())
	batch := make([]models.Certificate, 0, len(result.Eligible))
	for _, studentID := range result.Eligible {
		batch = append(batch, s.newCertificate(studentID, eventID, issuedAt))
	}
	if err := s.certs.CreateBatch(ctx, batch); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "certificates were issued concurrently for this event")
		}
		return nil, storeError(s.logger, err, nil, "failed to store certificates")
	}
	for _, cert := range batch {
		result.Issued = append(result.Issued, toIssued(cert))
	}

	s.metrics.CertificatesIssued(len(batch))
	s.cache.InvalidateEvent(ctx, eventID)
	s.logger.Info("event certificates issued", zap.String("event_id", eventID), zap.Int("count", len(batch)))
	return result, nil
}

// Verify recomputes the hash of a stored certificate.
func (s *CertificateService) Verify(ctx context.Context, id string) (*models.VerificationResult, error) {
	cert, err := s.certs.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(s.logger, err, appErrors.Clone(appErrors.ErrNotFound, "certificate not found"), "failed to load certificate")
	}
	return &models.VerificationResult{
		Authentic:        s.hasher.Verify(*cert),
		Revoked:          cert.Revoked,
		RevocationReason: cert.RevocationReason,
	}, nil
}

// PublicVerify answers an unauthenticated verification request and records the attempt.
// presented is the optional hash printed on the certificate.
func (s *CertificateService) PublicVerify(ctx context.Context, id, presented, clientIP string) (*dto.PublicVerification, error) {
	cert, err := s.certs.GetByID(ctx, id)
	if err != nil {
		if appErr := storeError(s.logger, err, appErrors.ErrNotFound, "failed to load certificate"); !appErrors.Is(appErr, appErrors.ErrNotFound) {
			return nil, appErr
		}
		s.metrics.VerificationAttempt(models.VerificationResult{})
		return &dto.PublicVerification{CertificateID: id, Message: "certificate not found"}, nil
	}

	authentic := s.hasher.Verify(*cert)
	if authentic && presented != "" {
		authentic = ledger.Matches(*cert, presented)
	}
	issuedAt := cert.IssuedAt

	out := &dto.PublicVerification{
		Authentic:        authentic,
		CertificateID:    cert.ID,
		IssuedAt:         &issuedAt,
		Revoked:          cert.Revoked,
		RevocationReason: cert.RevocationReason,
	}
	switch {
	case !authentic:
		out.Message = "certificate does not match its verification hash"
	case cert.Revoked:
		out.Message = "certificate has been revoked"
	default:
		out.Message = "certificate is authentic and valid"
	}

	if authentic {
		if student, err := s.facts.Student(ctx, cert.StudentID); err == nil {
			out.StudentName = &student.Name
		}
		if event, err := s.facts.Event(ctx, cert.EventID); err == nil {
			out.EventTitle = &event.Title
		}
	}

	attempt := &models.CertificateVerification{
		ID:            uuid.NewString(),
		CertificateID: cert.ID,
		EventID:       cert.EventID,
		VerifiedAt:    ledger.Timestamp(s.now()),
		Authentic:     authentic,
		Revoked:       cert.Revoked,
		ClientIP:      clientIP,
	}
	if err := s.certs.RecordVerification(ctx, attempt); err != nil {
		s.logger.Error("failed to record verification attempt", zap.String("certificate_id", cert.ID), zap.Error(err))
	}
	s.metrics.VerificationAttempt(models.VerificationResult{Authentic: authentic, Revoked: cert.Revoked})
	return out, nil
}

// Revoke marks a certificate revoked and appends the revocation to the audit ledger atomically.
func (s *CertificateService) Revoke(ctx context.Context, id string, req dto.RevokeCertificateRequest, actor string) (*models.Certificate, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}

	entry := &models.AuditEntry{PerformedBy: actor, Reason: req.Reason, Timestamp: s.now()}
	cert, err := s.certs.RevokeWithAudit(ctx, id, entry)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyApplied) {
			return nil, appErrors.ErrAlreadyRevoked
		}
		return nil, storeError(s.logger, err, appErrors.Clone(appErrors.ErrNotFound, "certificate not found"), "failed to revoke certificate")
	}

	s.metrics.CertificateRevoked()
	s.metrics.AuditAppended(string(models.AuditActionRevocation))
	s.cache.InvalidateEvent(ctx, cert.EventID)
	s.logger.Info("certificate revoked", zap.String("certificate_id", cert.ID), zap.String("performed_by", actor), zap.Int64("audit_seq", entry.Sequence))
	return cert, nil
}

// Stats summarises issuance for an event.
func (s *CertificateService) Stats(ctx context.Context, eventID string) (*models.CertificateStats, error) {
	if _, err := s.facts.Event(ctx, eventID); err != nil {
		return nil, err
	}
	ef, _, err := s.facts.EventFacts(ctx, eventID)
	if err != nil {
		return nil, err
	}
	report := s.projector.ReconcileEvent(eventID, projection.Group(ef))

	stats := models.CertificateStats{EventID: eventID}
	for _, rec := range report.Records {
		if rec.Registered {
			stats.Registered++
		}
		if rec.Attended {
			stats.Attended++
			if !rec.Certified {
				stats.Pending++
			}
		}
	}
	for _, cert := range ef.Certificates {
		if cert.Revoked {
			stats.Revoked++
		} else {
			stats.Issued++
		}
	}
	stats.CanIssuePending = stats.Pending > 0
	return &stats, nil
}

func (s *CertificateService) newCertificate(studentID, eventID string, issuedAt time.Time) models.Certificate {
	return models.Certificate{
		ID:               uuid.NewString(),
		StudentID:        studentID,
		EventID:          eventID,
		IssuedAt:         issuedAt,
		VerificationHash: s.hasher.Hash(studentID, eventID, issuedAt),
	}
}

func toIssued(c models.Certificate) models.IssuedCertificate {
	return models.IssuedCertificate{
		ID:               c.ID,
		StudentID:        c.StudentID,
		EventID:          c.EventID,
		IssuedAt:         c.IssuedAt,
		VerificationHash: c.VerificationHash,
	}
}
