package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/unipass-integrity-api/api/swagger"
	"github.com/noah-isme/unipass-integrity-api/internal/anomaly"
	"github.com/noah-isme/unipass-integrity-api/internal/features"
	"github.com/noah-isme/unipass-integrity-api/internal/fraud"
	"github.com/noah-isme/unipass-integrity-api/internal/handler"
	"github.com/noah-isme/unipass-integrity-api/internal/ledger"
	"github.com/noah-isme/unipass-integrity-api/internal/models"
	"github.com/noah-isme/unipass-integrity-api/internal/projection"
	"github.com/noah-isme/unipass-integrity-api/internal/repository"
	"github.com/noah-isme/unipass-integrity-api/internal/service"
	"github.com/noah-isme/unipass-integrity-api/pkg/cache"
	"github.com/noah-isme/unipass-integrity-api/pkg/config"
	"github.com/noah-isme/unipass-integrity-api/pkg/database"
	"github.com/noah-isme/unipass-integrity-api/pkg/jobs"
	"github.com/noah-isme/unipass-integrity-api/pkg/logger"
)

// @title UniPass Participation Integrity API
// @version 1.0.0
// @description Reconciliation, certificate ledger, audit trail, fraud heuristics and anomaly detection.
// @BasePath /
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
	}

	hasher, err := ledger.NewCertificateHasher(cfg.Certificates.MasterSecret, cfg.Certificates.HashInfo)
	if err != nil {
		return fmt.Errorf("certificate hasher: %w", err)
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	eventRepo := repository.NewEventRepository(db)
	scanRepo := repository.NewAttendanceRepository(db)
	certRepo := repository.NewCertificateRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	anomalyRepo := repository.NewAnomalyRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, "integrity", logr)
	defer cacheRepo.Close() //nolint:errcheck

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Reconciliation.CacheTTL, logr, redisClient != nil)
	facts := service.NewFactLoader(eventRepo, scanRepo, certRepo, auditRepo, logr).Instrument(metrics)
	projector := projection.New(penalties(cfg.Reconciliation))

	reconciliationSvc := service.NewReconciliationService(facts, projector, cacheSvc, metrics, validate, service.ReconciliationConfig{
		Parallelism: cfg.Reconciliation.Parallelism,
		CacheTTL:    cfg.Reconciliation.CacheTTL,
	}, logr)
	certificateSvc := service.NewCertificateService(certRepo, facts, projector, hasher, cacheSvc, metrics, validate, logr)
	auditSvc := service.NewAuditService(auditRepo, scanRepo, facts, projector, cacheSvc, metrics, validate, logr)
	fraudSvc := service.NewFraudService(facts, projector, certRepo, scanRepo, metrics, validate, fraudConfig(cfg.Fraud), cfg.Fraud.Parallelism, logr)
	anomalySvc := service.NewAnomalyService(anomaly.NewRegistry(), anomalyRepo, scanRepo, eventRepo,
		features.NewExtractor(cfg.Anomaly.LateScanFraction), metrics, validate, anomalyConfig(cfg.Anomaly), logr)
	authSvc := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
		Leeway:            cfg.JWT.Leeway,
	})

	restored, err := anomalySvc.Restore(ctx)
	if err != nil {
		logr.Warn("anomaly models not restored", zap.Error(err))
	} else {
		logr.Info("anomaly models restored", zap.Int("tenants", restored))
	}

	queue := jobs.NewQueue(service.TrainingJobType, anomalySvc.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Anomaly.WorkerConcurrency,
		MaxRetries: retries(cfg.Anomaly.WorkerRetries),
		RetryDelay: 5 * time.Second,
		Logger:     logr,
	})
	queue.Start(ctx)
	defer queue.Stop()
	anomalySvc.SetDispatcher(queue)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := newRouter(cfg, logr, metrics, authSvc, routeHandlers{
		participation: handler.NewParticipationHandler(reconciliationSvc, auditSvc),
		certificates:  handler.NewCertificateHandler(certificateSvc),
		audit:         handler.NewAuditHandler(auditSvc),
		fraud:         handler.NewFraudHandler(fraudSvc),
		anomaly:       handler.NewAnomalyHandler(anomalySvc),
		metrics:       handler.NewMetricsHandler(metrics, readinessChecks(db, redisClient)),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Anomaly.TrainingTimeout + 30*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func penalties(cfg config.ReconciliationConfig) projection.Penalties {
	return projection.Penalties{
		models.FlagRegisteredNotAttended: cfg.PenaltyRegisteredNotAttended,
		models.FlagAttendedNotRegistered: cfg.PenaltyAttendedNotRegistered,
		models.FlagCertifiedNotAttended:  cfg.PenaltyCertifiedNotAttended,
		models.FlagAttendedNotCertified:  cfg.PenaltyAttendedNotCertified,
		models.FlagDuplicateAttendance:   cfg.PenaltyDuplicateAttendance,
	}
}

func fraudConfig(cfg config.FraudConfig) fraud.Config {
	out := fraud.DefaultConfig()
	out.OverrideRatioThreshold = cfg.OverrideRatioThreshold
	out.OverrideMinScans = cfg.OverrideMinScans
	out.BurstWindow = cfg.BurstWindow
	out.BurstMinCertificates = cfg.BurstMinCertificates
	out.RapidScanThreshold = cfg.RapidScanThreshold
	return out
}

func anomalyConfig(cfg config.AnomalyConfig) service.AnomalyConfig {
	return service.AnomalyConfig{
		DefaultTenant: cfg.DefaultTenant,
		Params: anomaly.Params{
			MinSamples: cfg.MinSamples,
			Trees:      cfg.Trees,
			SampleSize: cfg.SampleSize,
			Seed:       cfg.Seed,
		},
		HighThreshold:   cfg.HighThreshold,
		MediumThreshold: cfg.MediumThreshold,
		TrainingTimeout: cfg.TrainingTimeout,
		TrainingWindow:  cfg.TrainingWindow,
	}
}

// retries maps the configured retry count onto QueueConfig, where zero means the default.
func retries(n int) int {
	if n <= 0 {
		return -1
	}
	return n
}

func readinessChecks(db *sqlx.DB, client *redis.Client) map[string]handler.ReadinessCheck {
	checks := map[string]handler.ReadinessCheck{"postgres": db.PingContext}
	if client != nil {
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}
	return checks
}
