package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/unipass-integrity-api/internal/dto"
	"github.com/noah-isme/unipass-integrity-api/internal/models"
	"github.com/noah-isme/unipass-integrity-api/pkg/response"
)

type reconciliationService interface {
	Participation(ctx context.Context, eventID, studentID string) (*models.Reconciliation, error)
	Event(ctx context.Context, eventID string) (*models.EventReconciliation, error)
	Conflicts(ctx context.Context, eventID string) (*dto.ConflictReport, error)
	Batch(ctx context.Context, req dto.EventBatchRequest) (*dto.BatchReconciliationResponse, error)
}

type correctionService interface {
	Correct(ctx context.Context, eventID, studentID string, req dto.CorrectionRequest, actor string) (*models.Reconciliation, error)
}

// ParticipationHandler exposes the reconciled participation view.
type ParticipationHandler struct {
	reconciliation reconciliationService
	corrections    correctionService
}

// NewParticipationHandler builds a new handler.
func NewParticipationHandler(reconciliation reconciliationService, corrections correctionService) *ParticipationHandler {
	return &ParticipationHandler{reconciliation: reconciliation, corrections: corrections}
}

// Get godoc
// @Summary Reconcile one student's participation in an event
// @Tags Participation
// @Produce json
// @Param event_id path string true "Event ID"
// @Param student_id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /participation/{event_id}/{student_id} [get]
func (h *ParticipationHandler) Get(c *gin.Context) {
	rec, err := h.reconciliation.Participation(c.Request.Context(), c.Param("event_id"), c.Param("student_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	respondOK(c, rec)
}

// Event godoc
// @Summary Reconcile every participant of an event
// @Tags Participation
// @Produce json
// @Param event_id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Router /events/{event_id}/reconciliation [get]
func (h *ParticipationHandler) Event(c *gin.Context) {
	report, err := h.reconciliation.Event(c.Request.Context(), c.Param("event_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	respondOK(c, report)
}

// Conflicts godoc
// @Summary List participants with conflicting facts
// @Tags Participation
// @Produce json
// @Param event_id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Router /events/{event_id}/conflicts [get]
func (h *ParticipationHandler) Conflicts(c *gin.Context) {
	report, err := h.reconciliation.Conflicts(c.Request.Context(), c.Param("event_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	respondOK(c, report)
}

// Correct godoc
// @Summary Correct registration or attendance of a participant
// @Tags Participation
// @Accept json
// @Produce json
// @Param event_id path string true "Event ID"
// @Param student_id path string true "Student ID"
// @Param payload body dto.CorrectionRequest true "Correction"
// @Success 200 {object} response.Envelope
// @Router /participation/{event_id}/{student_id}/corrections [post]
func (h *ParticipationHandler) Correct(c *gin.Context) {
	actor, authed := actorFromContext(c)
	if !authed {
		return
	}
	var req dto.CorrectionRequest
	if !bindJSON(c, &req, "invalid correction payload") {
		return
	}
	rec, err := h.corrections.Correct(c.Request.Context(), c.Param("event_id"), c.Param("student_id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondOK(c, rec)
}

// Batch godoc
// @Summary Reconcile several events in one call
// @Tags Participation
// @Accept json
// @Produce json
// @Param payload body dto.EventBatchRequest true "Events"
// @Success 200 {object} response.Envelope
// @Router /reconciliation/batch [post]
func (h *ParticipationHandler) Batch(c *gin.Context) {
	var req dto.EventBatchRequest
	if !bindJSON(c, &req, "invalid batch payload") {
		return
	}
	result, err := h.reconciliation.Batch(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondOK(c, result)
}
