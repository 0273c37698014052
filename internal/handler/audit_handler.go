package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/unipass-integrity-api/internal/dto"
	"github.com/noah-isme/unipass-integrity-api/internal/models"
	appErrors "github.com/noah-isme/unipass-integrity-api/pkg/errors"
	"github.com/noah-isme/unipass-integrity-api/pkg/response"
)

type auditService interface {
	Record(ctx context.Context, req dto.RecordAuditRequest) (*models.AuditEntry, error)
	History(ctx context.Context, eventID, studentID string) (*dto.AuditHistory, error)
	EventSummary(ctx context.Context, eventID string) (*dto.EventAuditSummary, error)
	SnapshotAt(ctx context.Context, eventID, studentID string, at time.Time) (*dto.ParticipationSnapshot, error)
	CompareSnapshots(ctx context.Context, eventID, studentID string, from, to time.Time) (*dto.SnapshotComparison, error)
	VerifyChain(ctx context.Context) (*models.ChainReport, error)
	InvalidateScan(ctx context.Context, scanID string, req dto.InvalidateScanRequest, actor string) (*models.AttendanceScan, error)
}

// AuditHandler exposes the audit ledger.
type AuditHandler struct {
	service auditService
}

// NewAuditHandler builds a new handler.
func NewAuditHandler(service auditService) *AuditHandler {
	return &AuditHandler{service: service}
}

// Append godoc
// @Summary Append a raw audit entry
// @Tags Audit
// @Accept json
// @Produce json
// @Param payload body dto.AppendAuditRequest true "Entry"
// @Success 201 {object} response.Envelope
// @Router /audit [post]
func (h *AuditHandler) Append(c *gin.Context) {
	actor, authed := actorFromContext(c)
	if !authed {
		return
	}
	var req dto.AppendAuditRequest
	if !bindJSON(c, &req, "invalid audit payload") {
		return
	}
	entry, err := h.service.Record(c.Request.Context(), dto.RecordAuditRequest{
		ActionType: req.ActionType,
		Target: models.AuditTarget{
			Type:      req.TargetType,
			ID:        req.TargetID,
			EventID:   req.EventID,
			StudentID: req.StudentID,
		},
		OldState:    req.OldState,
		NewState:    req.NewState,
		PerformedBy: actor,
		Reason:      req.Reason,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// History godoc
// @Summary Audit history of a participant
// @Tags Audit
// @Produce json
// @Param event_id path string true "Event ID"
// @Param student_id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /audit/{event_id}/{student_id} [get]
func (h *AuditHandler) History(c *gin.Context) {
	history, err := h.service.History(c.Request.Context(), c.Param("event_id"), c.Param("student_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	respondOK(c, history)
}

// Snapshot godoc
// @Summary Participation of a student as it stood at a point in time
// @Tags Audit
// @Produce json
// @Param event_id path string true "Event ID"
// @Param student_id path string true "Student ID"
// @Param at query string true "RFC3339 timestamp"
// @Success 200 {object} response.Envelope
// @Router /audit/{event_id}/{student_id}/snapshot [get]
func (h *AuditHandler) Snapshot(c *gin.Context) {
	raw := c.Query("at")
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "at must be an RFC3339 timestamp"))
		return
	}
	snapshot, err := h.service.SnapshotAt(c.Request.Context(), c.Param("event_id"), c.Param("student_id"), at)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondOK(c, snapshot)
}

// CompareSnapshots godoc
// @Summary Fields of a participation view that changed between two points in time
// @Tags Audit
// @Produce json
// @Param event_id path string true "Event ID"
// @Param student_id path string true "Student ID"
// @Param from query string true "RFC3339 timestamp"
// @Param to query string true "RFC3339 timestamp"
// @Success 200 {object} response.Envelope
// @Router /audit/{event_id}/{student_id}/compare [get]
func (h *AuditHandler) CompareSnapshots(c *gin.Context) {
	from, err := time.Parse(time.RFC3339Nano, c.Query("from"))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "from must be an RFC3339 timestamp"))
		return
	}
	to, err := time.Parse(time.RFC3339Nano, c.Query("to"))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "to must be an RFC3339 timestamp"))
		return
	}
	cmp, err := h.service.CompareSnapshots(c.Request.Context(), c.Param("event_id"), c.Param("student_id"), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondOK(c, cmp)
}

// EventSummary godoc
// @Summary Audit counts of an event
// @Tags Audit
// @Produce json
// @Param event_id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Router /events/{event_id}/audit/summary [get]
func (h *AuditHandler) EventSummary(c *gin.Context) {
	summary, err := h.service.EventSummary(c.Request.Context(), c.Param("event_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	respondOK(c, summary)
}

// VerifyChain godoc
// @Summary Verify the hash chain of the whole audit ledger
// @Tags Audit
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/audit/verify [get]
func (h *AuditHandler) VerifyChain(c *gin.Context) {
	report, err := h.service.VerifyChain(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	respondOK(c, report)
}

// InvalidateScan godoc
// @Summary Invalidate an attendance scan
// @Tags Audit
// @Accept json
// @Produce json
// @Param scan_id path string true "Attendance scan ID"
// @Param payload body dto.InvalidateScanRequest true "Reason"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /attendance/{scan_id}/invalidate [post]
func (h *AuditHandler) InvalidateScan(c *gin.Context) {
	actor, authed := actorFromContext(c)
	if !authed {
		return
	}
	var req dto.InvalidateScanRequest
	if !bindJSON(c, &req, "invalid invalidation payload") {
		return
	}
	scan, err := h.service.InvalidateScan(c.Request.Context(), c.Param("scan_id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondOK(c, scan)
}
