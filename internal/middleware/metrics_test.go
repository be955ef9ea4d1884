package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techkwon/Qbot/internal/service"
)

func scrape(t *testing.T, m *service.MetricsService) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetricsLabelsByRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := service.NewMetricsService()
	r := gin.New()
	r.Use(Metrics(m))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/chatbots/:chatbotId/sessions", func(c *gin.Context) { c.Status(http.StatusCreated) })

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodPost, "/chatbots/bot-1/sessions", nil),
		httptest.NewRequest(http.MethodGet, "/health", nil),
		httptest.NewRequest(http.MethodGet, "/nowhere", nil),
	} {
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	out := scrape(t, m)
	assert.Contains(t, out, `path="/chatbots/:chatbotId/sessions"`)
	assert.Contains(t, out, `path="unmatched"`)
	assert.NotContains(t, out, `path="/health"`)
	assert.NotContains(t, out, "bot-1")
}

func TestMetricsNilServicePassesThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics(nil))
	r.GET("/chatbots", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chatbots", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
