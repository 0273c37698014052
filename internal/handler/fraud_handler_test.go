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
)

type fraudServiceMock struct {
	batch dto.EventBatchRequest
}

func (m *fraudServiceMock) Scan(ctx context.Context, eventID string) (*models.FraudReport, error) {
	return &models.FraudReport{EventID: eventID, Alerts: []models.FraudAlert{{Type: models.FraudOrphanCertificate, Severity: models.SeverityHigh}}}, nil
}

func (m *fraudServiceMock) ScanEvents(ctx context.Context, req dto.EventBatchRequest) ([]models.FraudReport, error) {
	m.batch = req
	out := make([]models.FraudReport, len(req.EventIDs))
	for i, id := range req.EventIDs {
		out[i] = models.FraudReport{EventID: id}
	}
	return out, nil
}

func TestFraudHandlerScan(t *testing.T) {
	h := NewFraudHandler(&fraudServiceMock{})

	c, w := newTestContext(http.MethodGet, "/fraud/E1", nil, adminClaims(), gin.Param{Key: "event_id", Value: "E1"})
	h.Scan(c)

	require.Equal(t, http.StatusOK, w.Code)
	var report models.FraudReport
	decode(t, w, &report)
	require.Len(t, report.Alerts, 1)
	assert.Equal(t, models.FraudOrphanCertificate, report.Alerts[0].Type)
}

func TestFraudHandlerBatch(t *testing.T) {
	mock := &fraudServiceMock{}
	h := NewFraudHandler(mock)

	c, w := newTestContext(http.MethodPost, "/fraud/batch", dto.EventBatchRequest{EventIDs: []string{"E2", "E1"}}, adminClaims())
	h.Batch(c)

	require.Equal(t, http.StatusOK, w.Code)
	var reports []models.FraudReport
	decode(t, w, &reports)
	require.Len(t, reports, 2)
	assert.Equal(t, "E2", reports[0].EventID)
}
