package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/unipass-integrity-api/internal/dto"
	"github.com/noah-isme/unipass-integrity-api/internal/middleware"
	"github.com/noah-isme/unipass-integrity-api/internal/models"
	"github.com/noah-isme/unipass-integrity-api/pkg/response"
)

type anomalyService interface {
	Train(ctx context.Context, req dto.TrainRequest) (*models.TrainingResult, error)
	Enqueue(req dto.TrainRequest) (*dto.TrainingQueued, error)
	Status(ctx context.Context, tenantID string) (*models.ModelStatus, error)
	Detect(ctx context.Context, req dto.DetectRequest) (*models.AnomalyDetection, error)
	DetectEvent(ctx context.Context, tenantID, eventID string) (*models.EventAnomalyReport, error)
	UpdateThresholds(ctx context.Context, req dto.ThresholdsRequest) (*models.AnomalyThresholds, error)
	Summary(ctx context.Context, tenantID string) (*models.TenantAnomalySummary, error)
}

// AnomalyHandler exposes model training and scoring.
type AnomalyHandler struct {
	service anomalyService
}

// NewAnomalyHandler builds a new handler.
func NewAnomalyHandler(service anomalyService) *AnomalyHandler {
	return &AnomalyHandler{service: service}
}

func tenantOr(c *gin.Context, requested string) string {
	if requested != "" {
		return requested
	}
	return middleware.TenantID(c)
}

// Train godoc
// @Summary Train the anomaly model of a tenant
// @Description With async=true the run is queued and 202 is returned.
// @Tags Anomaly
// @Accept json
// @Produce json
// @Param payload body dto.TrainRequest false "Training options"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /anomaly/train [post]
func (h *AnomalyHandler) Train(c *gin.Context) {
	var req dto.TrainRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req, "invalid training payload") {
		return
	}
	req.TenantID = tenantOr(c, req.TenantID)

	if req.Async {
		queued, err := h.service.Enqueue(req)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Accepted(c, queued)
		return
	}

	result, err := h.service.Train(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondOK(c, result)
}

// Status godoc
// @Summary Anomaly model status
// @Tags Anomaly
// @Produce json
// @Param tenant_id query string false "Tenant (defaults to X-Tenant-ID)"
// @Success 200 {object} response.Envelope
// @Router /anomaly/status [get]
func (h *AnomalyHandler) Status(c *gin.Context) {
	status, err := h.service.Status(c.Request.Context(), tenantOr(c, c.Query("tenant_id")))
	if err != nil {
		response.Error(c, err)
		return
	}
	respondOK(c, status)
}

// Detect godoc
// @Summary Score one attendance scan or a raw feature vector
// @Tags Anomaly
// @Accept json
// @Produce json
// @Param payload body dto.DetectRequest true "Scan or features"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /anomaly/detect [post]
func (h *AnomalyHandler) Detect(c *gin.Context) {
	var req dto.DetectRequest
	if !bindJSON(c, &req, "invalid detection payload") {
		return
	}
	req.TenantID = tenantOr(c, req.TenantID)
	detection, err := h.service.Detect(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondOK(c, detection)
}

// DetectEvent godoc
// @Summary Anomalous scans of an event
// @Tags Anomaly
// @Produce json
// @Param event_id path string true "Event ID"
// @Param tenant_id query string false "Tenant (defaults to X-Tenant-ID)"
// @Success 200 {object} response.Envelope
// @Router /anomaly/events/{event_id} [get]
func (h *AnomalyHandler) DetectEvent(c *gin.Context) {
	report, err := h.service.DetectEvent(c.Request.Context(), tenantOr(c, c.Query("tenant_id")), c.Param("event_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	respondOK(c, report)
}

// Summary godoc
// @Summary Anomaly counts of a tenant over the training window
// @Tags Anomaly
// @Produce json
// @Param tenant_id query string false "Tenant (defaults to X-Tenant-ID)"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /anomaly/summary [get]
func (h *AnomalyHandler) Summary(c *gin.Context) {
	summary, err := h.service.Summary(c.Request.Context(), tenantOr(c, c.Query("tenant_id")))
	if err != nil {
		response.Error(c, err)
		return
	}
	respondOK(c, summary)
}

// UpdateThresholds godoc
// @Summary Override severity thresholds of a tenant
// @Tags Anomaly
// @Accept json
// @Produce json
// @Param payload body dto.ThresholdsRequest true "Thresholds"
// @Success 200 {object} response.Envelope
// @Router /anomaly/thresholds [put]
func (h *AnomalyHandler) UpdateThresholds(c *gin.Context) {
	var req dto.ThresholdsRequest
	if !bindJSON(c, &req, "invalid thresholds payload") {
		return
	}
	req.TenantID = tenantOr(c, req.TenantID)
	thresholds, err := h.service.UpdateThresholds(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondOK(c, thresholds)
}
