package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/techkwon/Qbot/internal/dto"
	"github.com/techkwon/Qbot/pkg/response"
)

type gateService interface {
	StartSession(ctx context.Context, userID, chatbotID string) (*dto.SessionStartResponse, error)
	Usage(ctx context.Context, userID, chatbotID string) (*dto.UsageStatusResponse, error)
}

// GateHandler exposes the student access/quota gate.
type GateHandler struct {
	service gateService
}

// NewGateHandler constructs the handler.
func NewGateHandler(svc gateService) *GateHandler {
	return &GateHandler{service: svc}
}

// StartSession godoc
// @Summary Start a chatbot session
// @Description Checks the student's profile, the chatbot, the class allow-list and the attempt quota, then records one usage session.
// @Tags Sessions
// @Produce json
// @Param chatbotId path string true "Chatbot ID"
// @Success 201 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Failure 504 {object} response.Envelope
// @Router /chatbots/{chatbotId}/sessions [post]
func (h *GateHandler) StartSession(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	session, err := h.service.StartSession(c.Request.Context(), userID, c.Param("chatbotId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// Usage godoc
// @Summary Attempt usage for a chatbot
// @Tags Sessions
// @Produce json
// @Param chatbotId path string true "Chatbot ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /chatbots/{chatbotId}/sessions/usage [get]
func (h *GateHandler) Usage(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	usage, err := h.service.Usage(c.Request.Context(), userID, c.Param("chatbotId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, usage, nil)
}
