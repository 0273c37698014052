package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/unipass-integrity-api/internal/anomaly"
	"github.com/noah-isme/unipass-integrity-api/internal/dto"
	"github.com/noah-isme/unipass-integrity-api/internal/features"
	"github.com/noah-isme/unipass-integrity-api/internal/models"
	appErrors "github.com/noah-isme/unipass-integrity-api/pkg/errors"
	"github.com/noah-isme/unipass-integrity-api/pkg/jobs"
)

// TrainingJobType identifies queued retraining jobs.
const TrainingJobType = "anomaly.train"

type anomalyStore interface {
	SaveModel(ctx context.Context, snap *models.AnomalyModelSnapshot) error
	ListActive(ctx context.Context) ([]models.AnomalyModelSnapshot, error)
	GetThresholds(ctx context.Context, tenantID string) (*models.AnomalyThresholds, error)
	UpsertThresholds(ctx context.Context, th models.AnomalyThresholds) error
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

// AnomalyConfig carries training and bucketing settings.
type AnomalyConfig struct {
	DefaultTenant   string
	Params          anomaly.Params
	HighThreshold   float64
	MediumThreshold float64
	TrainingTimeout time.Duration
	TrainingWindow  time.Duration
}

// AnomalyService trains per-tenant isolation forests and scores attendance scans with them.
type AnomalyService struct {
	registry  *anomaly.Registry
	store     anomalyStore
	scans     scanStore
	events    eventReader
	extractor *features.Extractor
	queue     jobDispatcher
	metrics   *MetricsService
	validator *validator.Validate
	cfg       AnomalyConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewAnomalyService constructs the service.
func NewAnomalyService(registry *anomaly.Registry, store anomalyStore, scans scanStore, events eventReader, extractor *features.Extractor, metrics *MetricsService, validate *validator.Validate, cfg AnomalyConfig, logger *zap.Logger) *AnomalyService {
	if registry == nil {
		registry = anomaly.NewRegistry()
	}
	if extractor == nil {
		extractor = features.NewExtractor(features.DefaultLateFraction)
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultTenant == "" {
		cfg.DefaultTenant = "default"
	}
	if cfg.Params.Trees <= 0 {
		cfg.Params = anomaly.DefaultParams()
	}
	if cfg.HighThreshold == 0 && cfg.MediumThreshold == 0 {
		cfg.HighThreshold, cfg.MediumThreshold = -0.6, -0.3
	}
	if cfg.TrainingTimeout <= 0 {
		cfg.TrainingTimeout = 2 * time.Minute
	}
	if cfg.TrainingWindow <= 0 {
		cfg.TrainingWindow = 180 * 24 * time.Hour
	}
	return &AnomalyService{
		registry:  registry,
		store:     store,
		scans:     scans,
		events:    events,
		extractor: extractor,
		metrics:   metrics,
		validator: validate,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// SetDispatcher enables async training through the job queue.
func (s *AnomalyService) SetDispatcher(queue jobDispatcher) {
	s.queue = queue
}

func (s *AnomalyService) tenant(id string) string {
	if id == "" {
		return s.cfg.DefaultTenant
	}
	return id
}

// Restore installs every persisted active model. Broken snapshots are skipped and logged.
func (s *AnomalyService) Restore(ctx context.Context) (int, error) {
	snaps, err := s.store.ListActive(ctx)
	if err != nil {
		return 0, storeError(s.logger, err, nil, "failed to load anomaly models")
	}

	restored := 0
	for _, snap := range snaps {
		var importance map[string]float64
		var dist models.ScoreDistribution
		if err := snap.FeatureImportance.Decode(&importance); err != nil {
			s.logger.Warn("skipping anomaly model", zap.String("tenant_id", snap.TenantID), zap.Error(err))
			continue
		}
		if err := snap.ScoreDistribution.Decode(&dist); err != nil {
			s.logger.Warn("skipping anomaly model", zap.String("tenant_id", snap.TenantID), zap.Error(err))
			continue
		}
		m, err := anomaly.Restore(snap.SerializedParameters, snap.ModelVersion, snap.SampleCount, snap.TrainedAt, importance, dist)
		if err != nil {
			s.logger.Warn("skipping anomaly model", zap.String("tenant_id", snap.TenantID), zap.Error(err))
			continue
		}
		s.registry.Install(snap.TenantID, m)
		restored++
	}
	s.logger.Info("anomaly models restored", zap.Int("count", restored))
	return restored, nil
}

// Train fits a new model for the tenant. When the deadline expires mid-fit the previous model
// stays current and the result reports timed_out.
func (s *AnomalyService) Train(ctx context.Context, req dto.TrainRequest) (*models.TrainingResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	tenant := s.tenant(req.TenantID)
	if !s.registry.BeginTraining(tenant) {
		return nil, appErrors.ErrTrainingInProgress
	}
	defer s.registry.EndTraining(tenant)

	timeout := s.cfg.TrainingTimeout
	if req.TimeoutSeconds > 0 {
		timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := s.now()
	samples, err := s.trainingSamples(tctx)
	if err == nil {
		var model *anomaly.Model
		model, err = anomaly.Train(tctx, samples, s.cfg.Params)
		if err == nil {
			return s.install(ctx, tenant, model, start)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(tctx.Err(), context.DeadlineExceeded) {
		s.metrics.ObserveTraining("timed_out", s.now().Sub(start))
		current, currentErr := s.registry.Current(tenant)
		if currentErr != nil {
			s.logger.Warn("anomaly training timed out without a previous model", zap.String("tenant_id", tenant), zap.Duration("timeout", timeout))
			return nil, appErrors.ErrTrainingTimeout
		}
		s.logger.Warn("anomaly training timed out, keeping previous model", zap.String("tenant_id", tenant), zap.Int("model_version", current.Version))
		return &models.TrainingResult{
			TenantID: tenant,
			TimedOut: true,
			Model:    current.Info(),
			Message:  "training timed out; previous model kept",
		}, nil
	}
	if appErrors.Is(err, appErrors.ErrInsufficientData) {
		s.metrics.ObserveTraining("insufficient_data", s.now().Sub(start))
		return nil, err
	}
	s.metrics.ObserveTraining("failed", s.now().Sub(start))
	return nil, storeError(s.logger, err, nil, "anomaly training failed")
}

func (s *AnomalyService) install(ctx context.Context, tenant string, model *anomaly.Model, start time.Time) (*models.TrainingResult, error) {
	model.Version = s.registry.NextVersion(tenant)

	params, err := model.MarshalParameters()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode model")
	}
	snap := &models.AnomalyModelSnapshot{
		ID:                   uuid.NewString(),
		TenantID:             tenant,
		ModelVersion:         model.Version,
		TrainedAt:            model.TrainedAt,
		SampleCount:          model.SampleCount,
		SerializedParameters: models.JSONState(params),
	}
	if snap.FeatureImportance, err = models.NewJSONState(model.FeatureImportance()); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode model")
	}
	if snap.ScoreDistribution, err = models.NewJSONState(model.Distribution); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode model")
	}
	if err := s.store.SaveModel(ctx, snap); err != nil {
		s.metrics.ObserveTraining("failed", s.now().Sub(start))
		return nil, storeError(s.logger, err, nil, "failed to persist anomaly model")
	}

	_, previousErr := s.registry.Current(tenant)
	s.registry.Install(tenant, model)
	s.metrics.ObserveTraining("trained", s.now().Sub(start))
	s.logger.Info("anomaly model trained",
		zap.String("tenant_id", tenant),
		zap.Int("model_version", model.Version),
		zap.Int("samples", model.SampleCount),
		zap.Duration("elapsed", s.now().Sub(start)),
	)
	return &models.TrainingResult{
		TenantID:      tenant,
		Model:         model.Info(),
		SamplesUsed:   model.SampleCount,
		ModelReplaced: previousErr == nil,
		Message:       "model trained",
	}, nil
}

// Enqueue schedules an async training run.
func (s *AnomalyService) Enqueue(req dto.TrainRequest) (*dto.TrainingQueued, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "training queue not configured")
	}
	tenant := s.tenant(req.TenantID)
	req.TenantID = tenant
	req.Async = false
	job := jobs.Job{ID: uuid.NewString(), Type: TrainingJobType, Payload: req}
	if err := s.queue.Enqueue(job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue training")
	}
	return &dto.TrainingQueued{TenantID: tenant, JobID: job.ID, Queued: true}, nil
}

// HandleJob runs a queued training request. Caller-facing failures are not retried.
func (s *AnomalyService) HandleJob(ctx context.Context, job jobs.Job) error {
	req, ok := job.Payload.(dto.TrainRequest)
	if !ok {
		return jobs.Permanent(fmt.Errorf("unexpected payload %T", job.Payload))
	}
	if _, err := s.Train(ctx, req); err != nil {
		if appErrors.IsDomain(err) {
			s.logger.Info("queued training skipped", zap.String("job_id", job.ID), zap.String("tenant_id", req.TenantID), zap.Error(err))
			return jobs.Permanent(err)
		}
		return err
	}
	return nil
}

// Status reports the tenant's model state and active thresholds.
func (s *AnomalyService) Status(ctx context.Context, tenantID string) (*models.ModelStatus, error) {
	tenant := s.tenant(tenantID)
	th, err := s.thresholds(ctx, tenant)
	if err != nil {
		return nil, err
	}
	status := &models.ModelStatus{TenantID: tenant, State: s.registry.State(tenant), Training: s.registry.Training(tenant), Thresholds: th}
	if m, err := s.registry.Current(tenant); err == nil {
		status.Trained = true
		status.Model = m.Info()
	}
	return status, nil
}

// Detect scores one stored scan or one raw feature map.
func (s *AnomalyService) Detect(ctx context.Context, req dto.DetectRequest) (*models.AnomalyDetection, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	tenant := s.tenant(req.TenantID)
	model, err := s.registry.Current(tenant)
	if err != nil {
		return nil, err
	}
	th, err := s.thresholds(ctx, tenant)
	if err != nil {
		return nil, err
	}

	var v features.Vector
	if req.ScanID != "" {
		scan, err := s.scans.GetByID(ctx, req.ScanID)
		if err != nil {
			return nil, storeError(s.logger, err, appErrors.Clone(appErrors.ErrNotFound, "attendance scan not found"), "failed to load scan")
		}
		contexts, err := s.contexts(ctx, []models.AttendanceScan{*scan})
		if err != nil {
			return nil, err
		}
		if len(contexts) == 0 {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event of scan not found")
		}
		v = s.extractor.Extract(contexts[0])
	} else {
		if v, err = vectorFromMap(req.Features); err != nil {
			return nil, err
		}
	}

	detection := score(model, th, v)
	s.metrics.Detection(detection.Severity)
	return &detection, nil
}

// DetectEvent scores every valid scan of an event and returns the reportable ones, most
// anomalous first.
func (s *AnomalyService) DetectEvent(ctx context.Context, tenantID, eventID string) (*models.EventAnomalyReport, error) {
	tenant := s.tenant(tenantID)
	model, err := s.registry.Current(tenant)
	if err != nil {
		return nil, err
	}
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return nil, storeError(s.logger, err, appErrors.Clone(appErrors.ErrNotFound, "event not found"), "failed to load event")
	}
	th, err := s.thresholds(ctx, tenant)
	if err != nil {
		return nil, err
	}

	scans, err := s.scans.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, storeError(s.logger, err, nil, "failed to load scans")
	}
	valid := make([]models.AttendanceScan, 0, len(scans))
	for _, sc := range scans {
		if sc.Counts() {
			valid = append(valid, sc)
		}
	}
	contexts, err := s.contexts(ctx, valid)
	if err != nil {
		return nil, err
	}

	anomalies := s.detectAll(model, th, contexts)
	return &models.EventAnomalyReport{
		TenantID:     tenant,
		EventID:      eventID,
		TotalChecked: len(contexts),
		Summary:      models.SummarizeAnomalies(len(contexts), anomalies),
		Anomalies:    anomalies,
		ModelVersion: model.Version,
	}, nil
}

// Summary scores every valid scan of the training window and condenses the result.
func (s *AnomalyService) Summary(ctx context.Context, tenantID string) (*models.TenantAnomalySummary, error) {
	tenant := s.tenant(tenantID)
	model, err := s.registry.Current(tenant)
	if err != nil {
		return nil, err
	}
	th, err := s.thresholds(ctx, tenant)
	if err != nil {
		return nil, err
	}

	since := s.now().Add(-s.cfg.TrainingWindow).UTC()
	scans, err := s.scans.ListSince(ctx, since)
	if err != nil {
		return nil, storeError(s.logger, err, nil, "failed to load scans")
	}
	contexts, err := s.contexts(ctx, scans)
	if err != nil {
		return nil, err
	}

	anomalies := s.detectAll(model, th, contexts)
	return &models.TenantAnomalySummary{
		TenantID:     tenant,
		Since:        since,
		ModelVersion: model.Version,
		Summary:      models.SummarizeAnomalies(len(contexts), anomalies),
	}, nil
}

// detectAll returns the reportable detections of contexts, most anomalous first.
func (s *AnomalyService) detectAll(model *anomaly.Model, th models.AnomalyThresholds, contexts []features.ScanContext) []models.ScanAnomaly {
	out := make([]models.ScanAnomaly, 0)
	for _, sc := range contexts {
		detection := score(model, th, s.extractor.Extract(sc))
		if !detection.Reportable {
			continue
		}
		s.metrics.Detection(detection.Severity)
		out = append(out, models.ScanAnomaly{
			AnomalyDetection: detection,
			ScanID:           sc.Scan.ID,
			StudentID:        sc.Scan.StudentID,
			EventID:          sc.Scan.EventID,
			ScannedAt:        sc.Scan.ScannedAt,
			Source:           sc.Scan.Source,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score < out[j].Score
	})
	return out
}

// UpdateThresholds overrides the tenant's severity cut-offs.
func (s *AnomalyService) UpdateThresholds(ctx context.Context, req dto.ThresholdsRequest) (*models.AnomalyThresholds, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	th := models.AnomalyThresholds{TenantID: s.tenant(req.TenantID), High: req.High, Medium: req.Medium}
	if err := s.store.UpsertThresholds(ctx, th); err != nil {
		return nil, storeError(s.logger, err, nil, "failed to store thresholds")
	}
	return &th, nil
}

func (s *AnomalyService) thresholds(ctx context.Context, tenant string) (models.AnomalyThresholds, error) {
	th, err := s.store.GetThresholds(ctx, tenant)
	if errors.Is(err, sql.ErrNoRows) {
		return models.AnomalyThresholds{TenantID: tenant, High: s.cfg.HighThreshold, Medium: s.cfg.MediumThreshold}, nil
	}
	if err != nil {
		return models.AnomalyThresholds{}, storeError(s.logger, err, nil, "failed to load thresholds")
	}
	return *th, nil
}

func (s *AnomalyService) trainingSamples(ctx context.Context) ([]features.Vector, error) {
	scans, err := s.scans.ListSince(ctx, s.now().Add(-s.cfg.TrainingWindow))
	if err != nil {
		return nil, err
	}
	contexts, err := s.contexts(ctx, scans)
	if err != nil {
		return nil, err
	}
	samples := make([]features.Vector, 0, len(contexts))
	for _, sc := range contexts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		samples = append(samples, s.extractor.Extract(sc))
	}
	return samples, nil
}

// contexts loads the histories needed to extract features for scans. Scans whose event is
// missing are dropped.
func (s *AnomalyService) contexts(ctx context.Context, scans []models.AttendanceScan) ([]features.ScanContext, error) {
	if len(scans) == 0 {
		return nil, nil
	}
	studentIDs := scanStudents(scans)

	history, err := s.scans.ListByStudents(ctx, studentIDs)
	if err != nil {
		return nil, storeError(s.logger, err, nil, "failed to load scan history")
	}
	registrations, err := s.events.ListRegistrationsByStudents(ctx, studentIDs)
	if err != nil {
		return nil, storeError(s.logger, err, nil, "failed to load registrations")
	}

	eventIDs := make(map[string]struct{})
	for _, sc := range scans {
		eventIDs[sc.EventID] = struct{}{}
	}
	for _, sc := range history {
		eventIDs[sc.EventID] = struct{}{}
	}
	for _, r := range registrations {
		eventIDs[r.EventID] = struct{}{}
	}
	ids := make([]string, 0, len(eventIDs))
	for id := range eventIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	list, err := s.events.ListByIDs(ctx, ids)
	if err != nil {
		return nil, storeError(s.logger, err, nil, "failed to load events")
	}
	events := make(map[string]models.Event, len(list))
	for _, e := range list {
		events[e.ID] = e
	}

	byStudent := make(map[string][]models.AttendanceScan)
	for _, sc := range history {
		byStudent[sc.StudentID] = append(byStudent[sc.StudentID], sc)
	}
	regsByStudent := make(map[string][]models.Registration)
	for _, r := range registrations {
		regsByStudent[r.StudentID] = append(regsByStudent[r.StudentID], r)
	}

	out := make([]features.ScanContext, 0, len(scans))
	for _, sc := range scans {
		event, ok := events[sc.EventID]
		if !ok {
			continue
		}
		out = append(out, features.ScanContext{
			Scan:          sc,
			Event:         event,
			History:       byStudent[sc.StudentID],
			Registrations: regsByStudent[sc.StudentID],
			Events:        events,
		})
	}
	return out, nil
}

func score(model *anomaly.Model, th models.AnomalyThresholds, v features.Vector) models.AnomalyDetection {
	value := model.Score(v)
	severity, reportable := th.Bucket(value)
	return models.AnomalyDetection{
		Score:        value,
		Severity:     severity,
		Reportable:   reportable,
		Explanation:  model.Explain(v),
		Features:     v.Map(),
		ModelVersion: model.Version,
	}
}

func vectorFromMap(raw map[string]float64) (features.Vector, error) {
	var v features.Vector
	var missing []string
	for i, name := range features.Names {
		value, ok := raw[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		v[i] = value
	}
	if len(missing) > 0 {
		return v, appErrors.Clone(appErrors.ErrValidation, "missing features: "+strings.Join(missing, ", "))
	}
	if len(raw) != features.Dimensions {
		return v, appErrors.Clone(appErrors.ErrValidation, "unknown features in request")
	}
	return v, nil
}
