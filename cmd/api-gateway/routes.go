package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/unipass-integrity-api/internal/handler"
	"github.com/noah-isme/unipass-integrity-api/internal/middleware"
	"github.com/noah-isme/unipass-integrity-api/internal/models"
	"github.com/noah-isme/unipass-integrity-api/internal/service"
	"github.com/noah-isme/unipass-integrity-api/pkg/config"
	"github.com/noah-isme/unipass-integrity-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/unipass-integrity-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/unipass-integrity-api/pkg/middleware/requestid"
)

type routeHandlers struct {
	participation *handler.ParticipationHandler
	certificates  *handler.CertificateHandler
	audit         *handler.AuditHandler
	fraud         *handler.FraudHandler
	anomaly       *handler.AnomalyHandler
	metrics       *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, metrics *service.MetricsService, auth *service.AuthService, h routeHandlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.GET("/public/certificates/:id/verify", h.certificates.PublicVerify)

	secured := api.Group("")
	secured.Use(middleware.JWT(auth), middleware.Tenant(cfg.Anomaly.DefaultTenant))

	staff := middleware.RequireRoles(models.RoleOrganizer)
	admin := middleware.RequireRoles(models.RoleAdmin)

	secured.GET("/participation/:event_id/:student_id", h.participation.Get)
	secured.POST("/participation/:event_id/:student_id/corrections", admin, h.participation.Correct)
	secured.POST("/reconciliation/batch", admin, h.participation.Batch)

	events := secured.Group("/events/:event_id")
	events.GET("/reconciliation", staff, h.participation.Event)
	events.GET("/conflicts", staff, h.participation.Conflicts)
	events.GET("/audit/summary", h.audit.EventSummary)
	events.POST("/certificates/issue", staff, h.certificates.IssueEvent)
	events.GET("/certificates/stats", h.certificates.Stats)

	secured.POST("/certificates", staff, h.certificates.Issue)
	secured.GET("/certificates/:id/verify", h.certificates.Verify)
	secured.POST("/certificates/:id/revoke", staff, h.certificates.Revoke)

	secured.POST("/attendance/:scan_id/invalidate", staff, h.audit.InvalidateScan)
	secured.POST("/audit", admin, h.audit.Append)
	secured.GET("/audit/:event_id/:student_id", h.audit.History)
	secured.GET("/audit/:event_id/:student_id/snapshot", h.audit.Snapshot)
	secured.GET("/audit/:event_id/:student_id/compare", h.audit.CompareSnapshots)
	secured.GET("/admin/audit/verify", admin, h.audit.VerifyChain)

	secured.GET("/fraud/:event_id", staff, h.fraud.Scan)
	secured.POST("/fraud/batch", admin, h.fraud.Batch)

	secured.POST("/anomaly/train", admin, h.anomaly.Train)
	secured.GET("/anomaly/status", h.anomaly.Status)
	secured.GET("/anomaly/summary", staff, h.anomaly.Summary)
	secured.POST("/anomaly/detect", h.anomaly.Detect)
	secured.GET("/anomaly/events/:event_id", h.anomaly.DetectEvent)
	secured.PUT("/anomaly/thresholds", admin, h.anomaly.UpdateThresholds)

	return r
}
