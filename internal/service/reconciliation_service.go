package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/unipass-integrity-api/internal/dto"
	"github.com/noah-isme/unipass-integrity-api/internal/models"
	"github.com/noah-isme/unipass-integrity-api/internal/projection"
)

// ReconciliationConfig tunes event passes.
type ReconciliationConfig struct {
	Parallelism int
	CacheTTL    time.Duration
}

// ReconciliationService derives trust-scored participation views from the fact store.
type ReconciliationService struct {
	facts     *FactLoader
	projector *projection.Projector
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	cfg       ReconciliationConfig
	logger    *zap.Logger
}

// NewReconciliationService constructs the service. cache and metrics may be nil.
func NewReconciliationService(facts *FactLoader, projector *projection.Projector, cache *CacheService, metrics *MetricsService, validate *validator.Validate, cfg ReconciliationConfig, logger *zap.Logger) *ReconciliationService {
	if projector == nil {
		projector = projection.New(nil)
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	return &ReconciliationService{
		facts:     facts,
		projector: projector,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		cfg:       cfg,
		logger:    logger,
	}
}

// Participation reconciles one (student, event) pair.
func (s *ReconciliationService) Participation(ctx context.Context, eventID, studentID string) (*models.Reconciliation, error) {
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

	rec := s.projector.Reconcile(projection.ForStudent(ef, studentID))
	s.metrics.Reconciled(1)
	return &rec, nil
}

// Event reconciles every pair of an event. Cached reports are keyed on the fact watermark,
// so any change to a source row misses the cache.
func (s *ReconciliationService) Event(ctx context.Context, eventID string) (*models.EventReconciliation, error) {
	if _, err := s.facts.Event(ctx, eventID); err != nil {
		return nil, err
	}

	var key string
	if s.cache.Enabled() {
		w, err := s.facts.Watermark(ctx, eventID)
		if err != nil {
			return nil, err
		}
		key = ReconciliationKey(eventID, w.Key())
		var cached models.EventReconciliation
		if s.cache.Get(ctx, key, &cached) {
			return &cached, nil
		}
	}

	ef, _, err := s.facts.EventFacts(ctx, eventID)
	if err != nil {
		return nil, err
	}

	report := s.projector.ReconcileEvent(eventID, projection.Group(ef))
	s.metrics.Reconciled(len(report.Records))
	if key != "" {
		s.cache.Set(ctx, key, report, s.cfg.CacheTTL)
	}
	return &report, nil
}

// Conflicts returns only the pairs of an event with at least one flag.
func (s *ReconciliationService) Conflicts(ctx context.Context, eventID string) (*dto.ConflictReport, error) {
	report, err := s.Event(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return &dto.ConflictReport{EventID: eventID, Total: len(report.Records), Conflicts: report.Conflicts()}, nil
}

// Batch reconciles several events in parallel. Results keep request order; the first failure
// cancels the remaining passes.
func (s *ReconciliationService) Batch(ctx context.Context, req dto.EventBatchRequest) (*dto.BatchReconciliationResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}

	out := make([]models.EventReconciliation, len(req.EventIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Parallelism)
	for i, id := range req.EventIDs {
		i, id := i, id
		g.Go(func() error {
			report, err := s.Event(gctx, id)
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
	return &dto.BatchReconciliationResponse{Events: out}, nil
}
