package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/unipass-integrity-api/internal/dto"
	"github.com/noah-isme/unipass-integrity-api/internal/fraud"
	"github.com/noah-isme/unipass-integrity-api/internal/models"
	"github.com/noah-isme/unipass-integrity-api/internal/projection"
)

type verificationReader interface {
	ListVerifications(ctx context.Context, eventID string) ([]models.CertificateVerification, error)
}

type scanCounter interface {
	CountsByStudents(ctx context.Context, studentIDs []string) ([]models.ScanCounts, error)
}

// FraudService runs the heuristic rules over an event. Reports are derived on every call and
// never stored.
type FraudService struct {
	facts         *FactLoader
	projector     *projection.Projector
	verifications verificationReader
	counts        scanCounter
	metrics       *MetricsService
	validator     *validator.Validate
	cfg           fraud.Config
	parallelism   int
	logger        *zap.Logger
}

// NewFraudService constructs the service.
func NewFraudService(facts *FactLoader, projector *projection.Projector, verifications verificationReader, counts scanCounter, metrics *MetricsService, validate *validator.Validate, cfg fraud.Config, parallelism int, logger *zap.Logger) *FraudService {
	if projector == nil {
		projector = projection.New(nil)
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if parallelism <= 0 {
		parallelism = 4
	}
	return &FraudService{
		facts:         facts,
		projector:     projector,
		verifications: verifications,
		counts:        counts,
		metrics:       metrics,
		validator:     validate,
		cfg:           cfg,
		parallelism:   parallelism,
		logger:        logger,
	}
}

// Scan evaluates every rule against one event.
func (s *FraudService) Scan(ctx context.Context, eventID string) (*models.FraudReport, error) {
	event, err := s.facts.Event(ctx, eventID)
	if err != nil {
		return nil, err
	}
	ef, _, err := s.facts.EventFacts(ctx, eventID)
	if err != nil {
		return nil, err
	}

	in := fraud.Input{
		Event:         *event,
		Registrations: ef.Registrations,
		Scans:         ef.Scans,
		Certificates:  ef.Certificates,
		Records:       s.projector.ReconcileEvent(eventID, projection.Group(ef)).Records,
		Totals:        make(map[string]models.ScanCounts),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		in.Verifications, err = s.verifications.ListVerifications(gctx, eventID)
		return err
	})
	g.Go(func() error {
		ids := scanStudents(ef.Scans)
		if len(ids) == 0 {
			return nil
		}
		counts, err := s.counts.CountsByStudents(gctx, ids)
		if err != nil {
			return err
		}
		for _, c := range counts {
			in.Totals[c.StudentID] = c
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, storeError(s.logger, err, nil, "failed to load fraud evidence")
	}

	report := fraud.Run(in, s.cfg)
	s.metrics.FraudAlerts(report.Alerts)
	if report.Summary.High > 0 {
		s.logger.Warn("high severity fraud alerts", zap.String("event_id", eventID), zap.Int("count", report.Summary.High))
	}
	return &report, nil
}

// ScanEvents runs Scan over several events in parallel, keeping request order.
func (s *FraudService) ScanEvents(ctx context.Context, req dto.EventBatchRequest) ([]models.FraudReport, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}

	out := make([]models.FraudReport, len(req.EventIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i, id := range req.EventIDs {
		i, id := i, id
		g.Go(func() error {
			report, err := s.Scan(gctx, id)
			if err != nil {
				return err
			}
			out[i] = *report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanStudents(scans []models.AttendanceScan) []string {
	seen := make(map[string]struct{}, len(scans))
	ids := make([]string, 0, len(scans))
	for _, sc := range scans {
		if _, ok := seen[sc.StudentID]; ok {
			continue
		}
		seen[sc.StudentID] = struct{}{}
		ids = append(ids, sc.StudentID)
	}
	return ids
}
