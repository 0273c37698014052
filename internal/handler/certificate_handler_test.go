package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/unipass-integrity-api/internal/dto"
	"github.com/noah-isme/unipass-integrity-api/internal/models"
	appErrors "github.com/noah-isme/unipass-integrity-api/pkg/errors"
)

type certificateServiceMock struct {
	issueErr      error
	batchResult   *dto.BatchIssueResult
	lastBatch     dto.BatchIssueRequest
	presentedHash string
	clientIP      string
	revokeActor   string
	revokeErr     error
}

func (m *certificateServiceMock) Issue(ctx context.Context, req dto.IssueCertificateRequest) (*models.IssuedCertificate, error) {
	if m.issueErr != nil {
		return nil, m.issueErr
	}
	return &models.IssuedCertificate{ID: "C1", StudentID: req.StudentID, EventID: req.EventID, VerificationHash: "abc"}, nil
}

func (m *certificateServiceMock) IssueEvent(ctx context.Context, eventID string, req dto.BatchIssueRequest) (*dto.BatchIssueResult, error) {
	m.lastBatch = req
	return m.batchResult, nil
}

func (m *certificateServiceMock) Verify(ctx context.Context, id string) (*models.VerificationResult, error) {
	return &models.VerificationResult{Authentic: true}, nil
}

func (m *certificateServiceMock) PublicVerify(ctx context.Context, id, presented, clientIP string) (*dto.PublicVerification, error) {
	m.presentedHash = presented
	m.clientIP = clientIP
	return &dto.PublicVerification{CertificateID: id, Message: "certificate not found"}, nil
}

func (m *certificateServiceMock) Revoke(ctx context.Context, id string, req dto.RevokeCertificateRequest, actor string) (*models.Certificate, error) {
	m.revokeActor = actor
	if m.revokeErr != nil {
		return nil, m.revokeErr
	}
	return &models.Certificate{ID: id, Revoked: true}, nil
}

func (m *certificateServiceMock) Stats(ctx context.Context, eventID string) (*models.CertificateStats, error) {
	return &models.CertificateStats{EventID: eventID}, nil
}

func TestCertificateHandlerIssue(t *testing.T) {
	h := NewCertificateHandler(&certificateServiceMock{})

	c, w := newTestContext(http.MethodPost, "/certificates", dto.IssueCertificateRequest{StudentID: "S1", EventID: "E1"}, adminClaims())
	h.Issue(c)

	require.Equal(t, http.StatusCreated, w.Code)
	var got models.IssuedCertificate
	decode(t, w, &got)
	assert.Equal(t, "abc", got.VerificationHash)
}

func TestCertificateHandlerIssueNotEligible(t *testing.T) {
	h := NewCertificateHandler(&certificateServiceMock{issueErr: appErrors.ErrNotEligible})

	c, w := newTestContext(http.MethodPost, "/certificates", dto.IssueCertificateRequest{StudentID: "S2", EventID: "E1"}, adminClaims())
	h.Issue(c)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "NOT_ELIGIBLE", decode(t, w, nil).Error.Code)
}

func TestCertificateHandlerIssueEventStatus(t *testing.T) {
	mock := &certificateServiceMock{batchResult: &dto.BatchIssueResult{EventID: "E1", DryRun: true, Eligible: []string{"S1"}}}
	h := NewCertificateHandler(mock)

	c, w := newTestContext(http.MethodPost, "/events/E1/certificates/issue", dto.BatchIssueRequest{DryRun: true}, adminClaims(), gin.Param{Key: "event_id", Value: "E1"})
	h.IssueEvent(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mock.lastBatch.DryRun)

	mock.batchResult = &dto.BatchIssueResult{EventID: "E1", Issued: []models.IssuedCertificate{{ID: "C1"}}}
	c, w = newTestContext(http.MethodPost, "/events/E1/certificates/issue", nil, adminClaims(), gin.Param{Key: "event_id", Value: "E1"})
	h.IssueEvent(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.False(t, mock.lastBatch.DryRun)
}

func TestCertificateHandlerPublicVerifyPassesHash(t *testing.T) {
	mock := &certificateServiceMock{}
	h := NewCertificateHandler(mock)

	c, w := newTestContext(http.MethodGet, "/public/certificates/C9/verify?hash=deadbeef", nil, nil, gin.Param{Key: "id", Value: "C9"})
	c.Request.RemoteAddr = "203.0.113.7:5555"
	h.PublicVerify(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "deadbeef", mock.presentedHash)
	assert.Equal(t, "203.0.113.7", mock.clientIP)
	assert.NotContains(t, w.Body.String(), "verification_hash")
}

func TestCertificateHandlerRevoke(t *testing.T) {
	mock := &certificateServiceMock{revokeErr: appErrors.ErrAlreadyRevoked}
	h := NewCertificateHandler(mock)

	c, w := newTestContext(http.MethodPost, "/certificates/C1/revoke", dto.RevokeCertificateRequest{Reason: "duplicate"}, adminClaims(), gin.Param{Key: "id", Value: "C1"})
	h.Revoke(c)

	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "admin-1", mock.revokeActor)
}
