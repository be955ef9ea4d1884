package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/techkwon/Qbot/internal/dto"
	"github.com/techkwon/Qbot/internal/service"
	"github.com/techkwon/Qbot/pkg/response"
)

// MaterialHandler exposes presigned upload and download of teaching materials.
type MaterialHandler struct {
	service *service.MaterialService
}

// NewMaterialHandler constructs the handler.
func NewMaterialHandler(svc *service.MaterialService) *MaterialHandler {
	return &MaterialHandler{service: svc}
}

// PresignUpload godoc
// @Summary Register a material upload
// @Description Returns the stored material and a presigned PUT URL the browser uploads the file to.
// @Tags Materials
// @Accept json
// @Produce json
// @Param chatbotId path string true "Chatbot ID"
// @Param payload body dto.PresignUploadRequest true "File description"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /teacher/chatbots/{chatbotId}/materials [post]
func (h *MaterialHandler) PresignUpload(c *gin.Context) {
	teacherID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req dto.PresignUploadRequest
	if !bindJSON(c, &req, "invalid upload payload") {
		return
	}
	res, err := h.service.PresignUpload(c.Request.Context(), teacherID, c.Param("chatbotId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// List godoc
// @Summary List chatbot materials
// @Tags Materials
// @Produce json
// @Param chatbotId path string true "Chatbot ID"
// @Success 200 {object} response.Envelope
// @Router /teacher/chatbots/{chatbotId}/materials [get]
func (h *MaterialHandler) List(c *gin.Context) {
	teacherID, ok := currentUserID(c)
	if !ok {
		return
	}
	items, err := h.service.List(c.Request.Context(), teacherID, c.Param("chatbotId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Download godoc
// @Summary Presigned material download
// @Tags Materials
// @Produce json
// @Param chatbotId path string true "Chatbot ID"
// @Param materialId path string true "Material ID"
// @Success 200 {object} response.Envelope
// @Router /teacher/chatbots/{chatbotId}/materials/{materialId} [get]
func (h *MaterialHandler) Download(c *gin.Context) {
	teacherID, ok := currentUserID(c)
	if !ok {
		return
	}
	res, err := h.service.PresignDownload(c.Request.Context(), teacherID, c.Param("chatbotId"), c.Param("materialId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Delete godoc
// @Summary Delete material
// @Tags Materials
// @Param chatbotId path string true "Chatbot ID"
// @Param materialId path string true "Material ID"
// @Success 204
// @Router /teacher/chatbots/{chatbotId}/materials/{materialId} [delete]
func (h *MaterialHandler) Delete(c *gin.Context) {
	teacherID, ok := currentUserID(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), teacherID, c.Param("chatbotId"), c.Param("materialId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// StudentList godoc
// @Summary Materials of a chatbot I can open
// @Tags Materials
// @Produce json
// @Param chatbotId path string true "Chatbot ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /chatbots/{chatbotId}/materials [get]
func (h *MaterialHandler) StudentList(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	items, err := h.service.ListForStudent(c.Request.Context(), userID, c.Param("chatbotId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// StudentDownload godoc
// @Summary Presigned material download for students
// @Tags Materials
// @Produce json
// @Param chatbotId path string true "Chatbot ID"
// @Param materialId path string true "Material ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /chatbots/{chatbotId}/materials/{materialId} [get]
func (h *MaterialHandler) StudentDownload(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	res, err := h.service.PresignStudentDownload(c.Request.Context(), userID, c.Param("chatbotId"), c.Param("materialId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}
