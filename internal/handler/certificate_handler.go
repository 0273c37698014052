package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/unipass-integrity-api/internal/dto"
	"github.com/noah-isme/unipass-integrity-api/internal/models"
	"github.com/noah-isme/unipass-integrity-api/pkg/response"
)

type certificateService interface {
	Issue(ctx context.Context, req dto.IssueCertificateRequest) (*models.IssuedCertificate, error)
	IssueEvent(ctx context.Context, eventID string, req dto.BatchIssueRequest) (*dto.BatchIssueResult, error)
	Verify(ctx context.Context, id string) (*models.VerificationResult, error)
	PublicVerify(ctx context.Context, id, presented, clientIP string) (*dto.PublicVerification, error)
	Revoke(ctx context.Context, id string, req dto.RevokeCertificateRequest, actor string) (*models.Certificate, error)
	Stats(ctx context.Context, eventID string) (*models.CertificateStats, error)
}

// CertificateHandler exposes issuance, verification and revocation.
type CertificateHandler struct {
	service certificateService
}

// NewCertificateHandler builds a new handler.
func NewCertificateHandler(service certificateService) *CertificateHandler {
	return &CertificateHandler{service: service}
}

// Issue godoc
// @Summary Issue a certificate to an eligible student
// @Tags Certificates
// @Accept json
// @Produce json
// @Param payload body dto.IssueCertificateRequest true "Certificate"
// @Success 201 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /certificates [post]
func (h *CertificateHandler) Issue(c *gin.Context) {
	var req dto.IssueCertificateRequest
	if !bindJSON(c, &req, "invalid certificate payload") {
		return
	}
	cert, err := h.service.Issue(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, cert)
}

// IssueEvent godoc
// @Summary Issue certificates to every eligible participant of an event
// @Tags Certificates
// @Accept json
// @Produce json
// @Param event_id path string true "Event ID"
// @Param payload body dto.BatchIssueRequest false "Options"
// @Success 200 {object} response.Envelope
// @Router /events/{event_id}/certificates/issue [post]
func (h *CertificateHandler) IssueEvent(c *gin.Context) {
	var req dto.BatchIssueRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req, "invalid batch issue payload") {
		return
	}
	result, err := h.service.IssueEvent(c.Request.Context(), c.Param("event_id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusCreated
	if result.DryRun || len(result.Issued) == 0 {
		status = http.StatusOK
	}
	response.JSON(c, status, result, nil)
}

// Stats godoc
// @Summary Certificate counts of an event
// @Tags Certificates
// @Produce json
// @Param event_id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Router /events/{event_id}/certificates/stats [get]
func (h *CertificateHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context(), c.Param("event_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	respondOK(c, stats)
}

// Verify godoc
// @Summary Recompute and compare a certificate hash
// @Tags Certificates
// @Produce json
// @Param id path string true "Certificate ID"
// @Success 200 {object} response.Envelope
// @Router /certificates/{id}/verify [get]
func (h *CertificateHandler) Verify(c *gin.Context) {
	result, err := h.service.Verify(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	respondOK(c, result)
}

// Revoke godoc
// @Summary Revoke a certificate
// @Tags Certificates
// @Accept json
// @Produce json
// @Param id path string true "Certificate ID"
// @Param payload body dto.RevokeCertificateRequest true "Reason"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /certificates/{id}/revoke [post]
func (h *CertificateHandler) Revoke(c *gin.Context) {
	actor, authed := actorFromContext(c)
	if !authed {
		return
	}
	var req dto.RevokeCertificateRequest
	if !bindJSON(c, &req, "invalid revocation payload") {
		return
	}
	cert, err := h.service.Revoke(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondOK(c, cert)
}

// PublicVerify godoc
// @Summary Public certificate verification
// @Description Anyone holding a certificate id can check it. The hash printed on the certificate may be passed to detect forged copies.
// @Tags Public
// @Produce json
// @Param id path string true "Certificate ID"
// @Param hash query string false "Verification hash printed on the certificate"
// @Success 200 {object} response.Envelope
// @Router /public/certificates/{id}/verify [get]
func (h *CertificateHandler) PublicVerify(c *gin.Context) {
	result, err := h.service.PublicVerify(c.Request.Context(), c.Param("id"), c.Query("hash"), c.ClientIP())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
