package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/unipass-integrity-api/internal/models"
)

// AnomalyRepository stores model snapshots, the active model per tenant and tenant thresholds.
type AnomalyRepository struct {
	db *sqlx.DB
}

// NewAnomalyRepository constructs the repository.
func NewAnomalyRepository(db *sqlx.DB) *AnomalyRepository {
	return &AnomalyRepository{db: db}
}

// SaveModel stores the snapshot and marks it active for its tenant.
func (r *AnomalyRepository) SaveModel(ctx context.Context, snap *models.AnomalyModelSnapshot) (err error) {
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save anomaly model: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insert = `INSERT INTO anomaly_models
	(id, tenant_id, model_version, trained_at, sample_count, feature_importance, score_distribution, parameters)
	VALUES (:id, :tenant_id, :model_version, :trained_at, :sample_count, :feature_importance, :score_distribution, :parameters)`
	if _, err = tx.NamedExecContext(ctx, insert, snap); err != nil {
		return fmt.Errorf("insert anomaly model: %w", err)
	}

	const activate = `INSERT INTO anomaly_active_models (tenant_id, model_id, activated_at)
	VALUES ($1, $2, NOW())
	ON CONFLICT (tenant_id) DO UPDATE SET model_id = EXCLUDED.model_id, activated_at = EXCLUDED.activated_at`
	if _, err = tx.ExecContext(ctx, activate, snap.TenantID, snap.ID); err != nil {
		return fmt.Errorf("activate anomaly model: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save anomaly model: %w", err)
	}
	return nil
}

// ListActive returns the active snapshot of every tenant.
func (r *AnomalyRepository) ListActive(ctx context.Context) ([]models.AnomalyModelSnapshot, error) {
	const query = `SELECT m.id, m.tenant_id, m.model_version, m.trained_at, m.sample_count,
       m.feature_importance, m.score_distribution, m.parameters
	FROM anomaly_active_models a
	JOIN anomaly_models m ON m.id = a.model_id`
	var snaps []models.AnomalyModelSnapshot
	if err := r.db.SelectContext(ctx, &snaps, query); err != nil {
		return nil, fmt.Errorf("list active anomaly models: %w", err)
	}
	return snaps, nil
}

// GetThresholds fetches a tenant's severity thresholds. sql.ErrNoRows means defaults apply.
func (r *AnomalyRepository) GetThresholds(ctx context.Context, tenantID string) (*models.AnomalyThresholds, error) {
	const query = `SELECT tenant_id, high_threshold, medium_threshold FROM anomaly_thresholds WHERE tenant_id = $1`
	var th models.AnomalyThresholds
	if err := r.db.GetContext(ctx, &th, query, tenantID); err != nil {
		return nil, err
	}
	return &th, nil
}

// UpsertThresholds stores a tenant's severity thresholds.
func (r *AnomalyRepository) UpsertThresholds(ctx context.Context, th models.AnomalyThresholds) error {
	const query = `INSERT INTO anomaly_thresholds (tenant_id, high_threshold, medium_threshold, updated_at)
	VALUES (:tenant_id, :high_threshold, :medium_threshold, NOW())
	ON CONFLICT (tenant_id) DO UPDATE SET high_threshold = EXCLUDED.high_threshold,
	    medium_threshold = EXCLUDED.medium_threshold, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, th); err != nil {
		return fmt.Errorf("upsert anomaly thresholds: %w", err)
	}
	return nil
}
