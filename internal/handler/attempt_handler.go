package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/techkwon/Qbot/internal/dto"
	"github.com/techkwon/Qbot/pkg/response"
)

type attemptService interface {
	Reset(ctx context.Context, teacherID, chatbotID string, req dto.ResetAttemptsRequest) (*dto.ResetAttemptsResponse, error)
}

// AttemptHandler exposes administrative attempt resets.
type AttemptHandler struct {
	service attemptService
}

// NewAttemptHandler constructs the handler.
func NewAttemptHandler(svc attemptService) *AttemptHandler {
	return &AttemptHandler{service: svc}
}

// Reset godoc
// @Summary Reset chatbot attempts
// @Description Deletes usage sessions for one student, one class, or every student of the chatbot.
// @Tags Attempts
// @Accept json
// @Produce json
// @Param chatbotId path string true "Chatbot ID"
// @Param payload body dto.ResetAttemptsRequest true "Reset scope"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /teacher/chatbots/{chatbotId}/manage-attempts [post]
func (h *AttemptHandler) Reset(c *gin.Context) {
	teacherID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req dto.ResetAttemptsRequest
	if !bindJSON(c, &req, "invalid reset payload") {
		return
	}

	res, err := h.service.Reset(c.Request.Context(), teacherID, c.Param("chatbotId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}
