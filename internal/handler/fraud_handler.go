package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/unipass-integrity-api/internal/dto"
	"github.com/noah-isme/unipass-integrity-api/internal/models"
	"github.com/noah-isme/unipass-integrity-api/pkg/response"
)

type fraudService interface {
	Scan(ctx context.Context, eventID string) (*models.FraudReport, error)
	ScanEvents(ctx context.Context, req dto.EventBatchRequest) ([]models.FraudReport, error)
}

// FraudHandler exposes the heuristic fraud pass.
type FraudHandler struct {
	service fraudService
}

// NewFraudHandler builds a new handler.
func NewFraudHandler(service fraudService) *FraudHandler {
	return &FraudHandler{service: service}
}

// Scan godoc
// @Summary Run fraud heuristics over an event
// @Tags Fraud
// @Produce json
// @Param event_id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Router /fraud/{event_id} [get]
func (h *FraudHandler) Scan(c *gin.Context) {
	report, err := h.service.Scan(c.Request.Context(), c.Param("event_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	respondOK(c, report)
}

// Batch godoc
// @Summary Run fraud heuristics over several events
// @Tags Fraud
// @Accept json
// @Produce json
// @Param payload body dto.EventBatchRequest true "Events"
// @Success 200 {object} response.Envelope
// @Router /fraud/batch [post]
func (h *FraudHandler) Batch(c *gin.Context) {
	var req dto.EventBatchRequest
	if !bindJSON(c, &req, "invalid batch payload") {
		return
	}
	reports, err := h.service.ScanEvents(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondOK(c, reports)
}
