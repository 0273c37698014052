package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/unipass-integrity-api/internal/service"
)

func TestMetricsHandlerReady(t *testing.T) {
	h := NewMetricsHandler(service.NewMetricsService(), map[string]ReadinessCheck{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})

	c, w := newTestContext(http.MethodGet, "/ready", nil, nil)
	h.Ready(c)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"redis":"connection refused"`)
	assert.Contains(t, w.Body.String(), `"postgres":"ok"`)
}

func TestMetricsHandlerPrometheus(t *testing.T) {
	h := NewMetricsHandler(service.NewMetricsService(), nil)

	c, w := newTestContext(http.MethodGet, "/metrics", nil, nil)
	h.Prometheus(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "integrity_certificates_issued_total")

	c, w = newTestContext(http.MethodGet, "/ready", nil, nil)
	NewMetricsHandler(nil, nil).Ready(c)
	require.Equal(t, http.StatusOK, w.Code)
}
