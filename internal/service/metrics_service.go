package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/unipass-integrity-api/internal/models"
)

// MetricsService owns the Prometheus registry for HTTP, cache and integrity engine instrumentation.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Histogram
	cacheWrite      prometheus.Histogram
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	dbQueryDuration *prometheus.HistogramVec

	certificatesIssued  prometheus.Counter
	certificatesRevoked prometheus.Counter
	verifications       *prometheus.CounterVec
	auditEntries        *prometheus.CounterVec
	reconciliations     prometheus.Counter
	fraudAlerts         *prometheus.CounterVec
	trainingDuration    prometheus.Histogram
	trainingRuns        *prometheus.CounterVec
	detections          *prometheus.CounterVec

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers every collector on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		cacheLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_latency_seconds",
			Help:    "Latency for cache lookups",
			Buckets: prometheus.DefBuckets,
		}),
		cacheWrite: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_write_seconds",
			Help:    "Latency for cache writes",
			Buckets: prometheus.DefBuckets,
		}),
		cacheHitRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cache_hit_ratio",
			Help: "Ratio of cache hits to total cache lookups",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total cache misses",
		}),
		dbQueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Duration of database queries",
			Buckets: prometheus.DefBuckets,
		}, []string{"query"}),
		certificatesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "integrity_certificates_issued_total",
			Help: "Certificates persisted by the issuance endpoints",
		}),
		certificatesRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "integrity_certificates_revoked_total",
			Help: "Certificates revoked",
		}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "integrity_certificate_verifications_total",
			Help: "Certificate verification attempts by outcome",
		}, []string{"result"}),
		auditEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "integrity_audit_entries_total",
			Help: "Audit ledger entries appended by action type",
		}, []string{"action"}),
		reconciliations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "integrity_reconciliations_total",
			Help: "Participation records reconciled",
		}),
		fraudAlerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "integrity_fraud_alerts_total",
			Help: "Fraud alerts raised by type and severity",
		}, []string{"type", "severity"}),
		trainingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "integrity_anomaly_training_seconds",
			Help:    "Wall time spent fitting anomaly models",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
		trainingRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "integrity_anomaly_training_runs_total",
			Help: "Anomaly training runs by outcome",
		}, []string{"outcome"}),
		detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "integrity_anomaly_detections_total",
			Help: "Scans scored by the anomaly model by severity",
		}, []string{"severity"}),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		m.requestDuration, m.requestTotal,
		m.cacheLatency, m.cacheWrite,
		m.cacheHitRatio, m.cacheHits, m.cacheMisses, m.dbQueryDuration,
		m.certificatesIssued, m.certificatesRevoked, m.verifications, m.auditEntries,
		m.reconciliations, m.fraudAlerts, m.trainingDuration, m.trainingRuns, m.detections,
		goroutines,
	)

	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry returns the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}

func (m *MetricsService) CertificatesIssued(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.certificatesIssued.Add(float64(n))
}

func (m *MetricsService) CertificateRevoked() {
	if m == nil {
		return
	}
	m.certificatesRevoked.Inc()
}

// VerificationAttempt counts a verification as authentic, revoked or forged.
func (m *MetricsService) VerificationAttempt(result models.VerificationResult) {
	if m == nil {
		return
	}
	label := "forged"
	switch {
	case result.Authentic && result.Revoked:
		label = "revoked"
	case result.Authentic:
		label = "authentic"
	}
	m.verifications.WithLabelValues(label).Inc()
}

func (m *MetricsService) AuditAppended(action string) {
	if m == nil {
		return
	}
	m.auditEntries.WithLabelValues(action).Inc()
}

func (m *MetricsService) Reconciled(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.reconciliations.Add(float64(n))
}

// FraudAlerts counts every alert of a scan by type and severity.
func (m *MetricsService) FraudAlerts(alerts []models.FraudAlert) {
	if m == nil {
		return
	}
	for _, a := range alerts {
		m.fraudAlerts.WithLabelValues(string(a.Type), string(a.Severity)).Inc()
	}
}

// ObserveTraining records one training run. outcome is trained, timed_out, insufficient_data or failed.
func (m *MetricsService) ObserveTraining(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.trainingDuration.Observe(duration.Seconds())
	m.trainingRuns.WithLabelValues(outcome).Inc()
}

func (m *MetricsService) Detection(severity models.Severity) {
	if m == nil {
		return
	}
	m.detections.WithLabelValues(string(severity)).Inc()
}
