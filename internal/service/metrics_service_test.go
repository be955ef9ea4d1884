package service

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServiceGateDecisions(t *testing.T) {
	m := NewMetricsService()
	m.RecordGateDecision(GateOutcomeAllowed)
	m.RecordGateDecision(GateOutcomeAllowed)
	m.RecordGateDecision(GateOutcomeQuotaExceeded)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.gateDecisions.WithLabelValues(GateOutcomeAllowed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.gateDecisions.WithLabelValues(GateOutcomeQuotaExceeded)))
}

func TestMetricsServiceCacheRatio(t *testing.T) {
	m := NewMetricsService()
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)

	assert.InDelta(t, 2.0/3.0, testutil.ToFloat64(m.cacheHitRatio), 0.0001)
}

func TestMetricsHandlerExposesCollectors(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest(http.MethodPost, "/api/v1/chatbots/:chatbotId/sessions", http.StatusCreated, 10*time.Millisecond)
	m.RecordAttemptReset("class", 4)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, "http_requests_total"))
	assert.True(t, strings.Contains(body, `qbot_attempt_resets_total{scope="class"} 4`))
}

func TestNilMetricsServiceIsSafe(t *testing.T) {
	var m *MetricsService
	m.RecordGateDecision(GateOutcomeAllowed)
	m.ObserveEvaluation("completed", time.Second)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
