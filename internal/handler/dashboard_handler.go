package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/techkwon/Qbot/internal/dto"
	"github.com/techkwon/Qbot/internal/middleware"
	"github.com/techkwon/Qbot/pkg/response"
)

type dashboardService interface {
	ChatbotSummary(ctx context.Context, teacherID, chatbotID string) (*dto.ChatbotSummaryResponse, bool, error)
}

// DashboardHandler wires dashboard service to HTTP endpoints.
type DashboardHandler struct {
	service dashboardService
}

// NewDashboardHandler constructs the handler.
func NewDashboardHandler(service dashboardService) *DashboardHandler {
	return &DashboardHandler{service: service}
}

// ChatbotSummary godoc
// @Summary Chatbot usage and goal dashboard
// @Tags Dashboard
// @Produce json
// @Param chatbotId path string true "Chatbot ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /teacher/chatbots/{chatbotId}/dashboard [get]
func (h *DashboardHandler) ChatbotSummary(c *gin.Context) {
	teacherID, ok := currentUserID(c)
	if !ok {
		return
	}
	start := time.Now()
	summary, cacheHit, err := h.service.ChatbotSummary(c.Request.Context(), teacherID, c.Param("chatbotId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	middleware.SetProcessingTime(c, start)
	response.JSON(c, http.StatusOK, summary, nil, middleware.ExtractMeta(c))
}
