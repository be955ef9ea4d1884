package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/techkwon/Qbot/internal/dto"
	"github.com/techkwon/Qbot/internal/service"
	"github.com/techkwon/Qbot/pkg/response"
)

// ChatbotHandler exposes chatbot management for teachers and the chatbot list for students.
type ChatbotHandler struct {
	service *service.ChatbotService
}

// NewChatbotHandler constructs the handler.
func NewChatbotHandler(svc *service.ChatbotService) *ChatbotHandler {
	return &ChatbotHandler{service: svc}
}

// List godoc
// @Summary List my chatbots
// @Tags Chatbots
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /teacher/chatbots [get]
func (h *ChatbotHandler) List(c *gin.Context) {
	teacherID, ok := currentUserID(c)
	if !ok {
		return
	}
	items, err := h.service.List(c.Request.Context(), teacherID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.ChatbotListResponse{Items: items}, nil)
}

// Get godoc
// @Summary Get chatbot
// @Tags Chatbots
// @Produce json
// @Param chatbotId path string true "Chatbot ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /teacher/chatbots/{chatbotId} [get]
func (h *ChatbotHandler) Get(c *gin.Context) {
	teacherID, ok := currentUserID(c)
	if !ok {
		return
	}
	bot, err := h.service.Get(c.Request.Context(), teacherID, c.Param("chatbotId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, bot, nil)
}

// Create godoc
// @Summary Create chatbot
// @Tags Chatbots
// @Accept json
// @Produce json
// @Param payload body dto.CreateChatbotRequest true "Chatbot payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /teacher/chatbots [post]
func (h *ChatbotHandler) Create(c *gin.Context) {
	teacherID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req dto.CreateChatbotRequest
	if !bindJSON(c, &req, "invalid chatbot payload") {
		return
	}
	bot, err := h.service.Create(c.Request.Context(), teacherID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, bot)
}

// Update godoc
// @Summary Replace chatbot configuration
// @Tags Chatbots
// @Accept json
// @Produce json
// @Param chatbotId path string true "Chatbot ID"
// @Param payload body dto.UpdateChatbotRequest true "Chatbot payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /teacher/chatbots/{chatbotId} [put]
func (h *ChatbotHandler) Update(c *gin.Context) {
	teacherID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req dto.UpdateChatbotRequest
	if !bindJSON(c, &req, "invalid chatbot payload") {
		return
	}
	bot, err := h.service.Update(c.Request.Context(), teacherID, c.Param("chatbotId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, bot, nil)
}

// Delete godoc
// @Summary Delete chatbot
// @Tags Chatbots
// @Param chatbotId path string true "Chatbot ID"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Router /teacher/chatbots/{chatbotId} [delete]
func (h *ChatbotHandler) Delete(c *gin.Context) {
	teacherID, ok := currentUserID(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), teacherID, c.Param("chatbotId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListForStudent godoc
// @Summary Chatbots available to me
// @Description Chatbots of the student's teacher whose class allow-list admits the student.
// @Tags Chatbots
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /chatbots [get]
func (h *ChatbotHandler) ListForStudent(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	items, err := h.service.ListForStudent(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}
