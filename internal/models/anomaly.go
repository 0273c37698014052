package models

import (
	"math"
	"time"
)

// ModelState is the lifecycle state of a tenant's anomaly model.
type ModelState string

const (
	ModelStateUntrained  ModelState = "UNTRAINED"
	ModelStateTrained    ModelState = "TRAINED"
	ModelStateRetraining ModelState = "RETRAINING"
)

// Severity buckets alerts and anomalies.
type Severity string

const (
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
	SeverityLow    Severity = "LOW"
)

// ScoreDistribution summarises training-set anomaly scores.
type ScoreDistribution struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// AnomalyModelSnapshot is the persisted form of a trained model.
type AnomalyModelSnapshot struct {
	ID                   string    `db:"id" json:"id"`
	TenantID             string    `db:"tenant_id" json:"tenant_id"`
	ModelVersion         int       `db:"model_version" json:"model_version"`
	TrainedAt            time.Time `db:"trained_at" json:"trained_at"`
	SampleCount          int       `db:"sample_count" json:"sample_count"`
	FeatureImportance    JSONState `db:"feature_importance" json:"feature_importance"`
	ScoreDistribution    JSONState `db:"score_distribution" json:"score_distribution"`
	SerializedParameters JSONState `db:"parameters" json:"-"`
}

// AnomalyThresholds are the tenant's severity cut-offs.
type AnomalyThresholds struct {
	TenantID string  `db:"tenant_id" json:"tenant_id"`
	High     float64 `db:"high_threshold" json:"high"`
	Medium   float64 `db:"medium_threshold" json:"medium"`
}

// Bucket maps a score onto a severity. ok is false when the score is not reportable.
func (t AnomalyThresholds) Bucket(score float64) (Severity, bool) {
	switch {
	case score <= t.High:
		return SeverityHigh, true
	case score <= t.Medium:
		return SeverityMedium, true
	default:
		return "", false
	}
}

// ModelInfo is the public metadata of a trained model.
type ModelInfo struct {
	ModelVersion      int                `json:"model_version"`
	TrainedAt         time.Time          `json:"trained_at"`
	SampleCount       int                `json:"sample_count"`
	FeatureImportance map[string]float64 `json:"feature_importance"`
	ScoreDistribution ScoreDistribution  `json:"score_distribution"`
}

// ModelStatus answers whether detection can run.
type ModelStatus struct {
	TenantID   string            `json:"tenant_id"`
	State      ModelState        `json:"state"`
	Trained    bool              `json:"is_trained"`
	Training   bool              `json:"is_training"`
	Model      *ModelInfo        `json:"model,omitempty"`
	Thresholds AnomalyThresholds `json:"thresholds"`
}

// TrainingResult is returned by a training request.
type TrainingResult struct {
	TenantID      string     `json:"tenant_id"`
	TimedOut      bool       `json:"timed_out"`
	Model         *ModelInfo `json:"model,omitempty"`
	SamplesUsed   int        `json:"samples_used"`
	ModelReplaced bool       `json:"model_replaced"`
	Message       string     `json:"message"`
}

// AnomalyDetection is the score of one feature vector.
type AnomalyDetection struct {
	Score        float64            `json:"anomaly_score"`
	Severity     Severity           `json:"severity,omitempty"`
	Reportable   bool               `json:"reportable"`
	Explanation  string             `json:"explanation"`
	Features     map[string]float64 `json:"features"`
	ModelVersion int                `json:"model_version"`
}

// ScanAnomaly is a reportable detection tied to a scan.
type ScanAnomaly struct {
	AnomalyDetection
	ScanID    string     `json:"attendance_id"`
	StudentID string     `json:"student_id"`
	EventID   string     `json:"event_id"`
	ScannedAt time.Time  `json:"scanned_at"`
	Source    ScanSource `json:"scan_source"`
}

// EventAnomalyReport aggregates the detections of one event.
type EventAnomalyReport struct {
	TenantID     string         `json:"tenant_id"`
	EventID      string         `json:"event_id"`
	TotalChecked int            `json:"total_checked"`
	Summary      AnomalySummary `json:"summary"`
	Anomalies    []ScanAnomaly  `json:"anomalies"`
	ModelVersion int            `json:"model_version"`
}

// SeverityCounts splits reportable detections by severity.
type SeverityCounts struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
}

// SourceCounts splits reportable detections by scan source.
type SourceCounts struct {
	QRScan        int `json:"qr_scan"`
	AdminOverride int `json:"admin_override"`
}

// AnomalySummary condenses a detection pass. AnomalyRate is a percentage rounded to two
// decimals; RequiresReview counts HIGH detections.
type AnomalySummary struct {
	TotalChecked   int            `json:"total_checked"`
	TotalAnomalies int            `json:"total_anomalies"`
	AnomalyRate    float64        `json:"anomaly_rate"`
	BySeverity     SeverityCounts `json:"by_severity"`
	BySource       SourceCounts   `json:"by_source"`
	RequiresReview int            `json:"requires_review"`
}

// SummarizeAnomalies builds the summary of checked scans that produced anomalies.
func SummarizeAnomalies(checked int, anomalies []ScanAnomaly) AnomalySummary {
	out := AnomalySummary{TotalChecked: checked, TotalAnomalies: len(anomalies)}
	for _, a := range anomalies {
		switch a.Severity {
		case SeverityHigh:
			out.BySeverity.High++
		case SeverityMedium:
			out.BySeverity.Medium++
		}
		switch a.Source {
		case ScanSourceQR:
			out.BySource.QRScan++
		case ScanSourceAdminOverride:
			out.BySource.AdminOverride++
		}
	}
	out.RequiresReview = out.BySeverity.High
	if checked > 0 {
		out.AnomalyRate = math.Round(float64(len(anomalies))/float64(checked)*10000) / 100
	}
	return out
}

// TenantAnomalySummary is the tenant-wide summary over the training window.
type TenantAnomalySummary struct {
	TenantID     string         `json:"tenant_id"`
	Since        time.Time      `json:"since"`
	ModelVersion int            `json:"model_version"`
	Summary      AnomalySummary `json:"summary"`
}
