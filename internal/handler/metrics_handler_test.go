package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/enrollment-engine/internal/models"
	"github.com/noah-isme/enrollment-engine/internal/service"
	appErrors "github.com/noah-isme/enrollment-engine/pkg/errors"
)

type probeStub struct{ err error }

func (p probeStub) Current(ctx context.Context) (*models.TermWindow, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &models.TermWindow{CurrentTerm: "2025-II"}, nil
}

func TestMetricsHandlerReady(t *testing.T) {
	handler := NewMetricsHandler(service.NewMetricsService(), probeStub{})
	c, w := newTestContext(http.MethodGet, "/ready", nil, nil)
	handler.Ready(c)
	require.Equal(t, http.StatusOK, w.Code)

	handler = NewMetricsHandler(nil, probeStub{err: appErrors.ErrConfigurationMissing})
	c, w = newTestContext(http.MethodGet, "/ready", nil, nil)
	handler.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsHandlerPrometheus(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.RecordEnrollmentOperation("enroll", nil)
	handler := NewMetricsHandler(metrics, nil)

	c, w := newTestContext(http.MethodGet, "/metrics", nil, nil)
	handler.Prometheus(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `enrollment_operations_total{operation="enroll",outcome="success"} 1`)

	c, w = newTestContext(http.MethodGet, "/metrics", nil, nil)
	NewMetricsHandler(nil, nil).Prometheus(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
