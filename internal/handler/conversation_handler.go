package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/techkwon/Qbot/internal/dto"
	"github.com/techkwon/Qbot/internal/service"
	"github.com/techkwon/Qbot/pkg/response"
)

// ConversationHandler records transcript lines for a running session.
type ConversationHandler struct {
	service *service.ConversationService
}

// NewConversationHandler constructs the handler.
func NewConversationHandler(svc *service.ConversationService) *ConversationHandler {
	return &ConversationHandler{service: svc}
}

// AppendMessage godoc
// @Summary Log a transcript line
// @Tags Sessions
// @Accept json
// @Produce json
// @Param sessionId path string true "Session ID"
// @Param payload body dto.AppendMessageRequest true "Message"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sessions/{sessionId}/messages [post]
func (h *ConversationHandler) AppendMessage(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req dto.AppendMessageRequest
	if !bindJSON(c, &req, "invalid message payload") {
		return
	}
	msg, err := h.service.AppendMessage(c.Request.Context(), userID, c.Param("sessionId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, msg)
}
