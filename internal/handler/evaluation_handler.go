package handler

import (
	"context"
	"mime"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/techkwon/Qbot/internal/dto"
	"github.com/techkwon/Qbot/internal/models"
	"github.com/techkwon/Qbot/internal/service"
	"github.com/techkwon/Qbot/pkg/response"
)

type evaluationService interface {
	Evaluate(ctx context.Context, teacherID, chatbotID string, req dto.EvaluateRequest) (*dto.EvaluationResponse, error)
	ListResults(ctx context.Context, teacherID, chatbotID, studentID string) ([]models.GoalEvaluation, error)
}

type reportExporter interface {
	EvaluationReport(ctx context.Context, teacherID, chatbotID, rawFormat string) (*service.ExportFile, error)
}

// EvaluationHandler exposes LLM goal evaluation and its reports.
type EvaluationHandler struct {
	service  evaluationService
	exporter reportExporter
}

// NewEvaluationHandler constructs the handler.
func NewEvaluationHandler(svc evaluationService, exporter reportExporter) *EvaluationHandler {
	return &EvaluationHandler{service: svc, exporter: exporter}
}

// Evaluate godoc
// @Summary Evaluate goal achievement
// @Description Grades the student's conversations on the chatbot against its learning goals. Responds 202 with pending rows when the evaluator is unavailable and a retry was scheduled.
// @Tags Evaluations
// @Accept json
// @Produce json
// @Param chatbotId path string true "Chatbot ID"
// @Param payload body dto.EvaluateRequest true "Student to evaluate"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /teacher/chatbots/{chatbotId}/evaluations [post]
func (h *EvaluationHandler) Evaluate(c *gin.Context) {
	teacherID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req dto.EvaluateRequest
	if !bindJSON(c, &req, "invalid evaluation payload") {
		return
	}

	res, err := h.service.Evaluate(c.Request.Context(), teacherID, c.Param("chatbotId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if res.Pending {
		response.Accepted(c, res)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// List godoc
// @Summary List goal evaluations
// @Tags Evaluations
// @Produce json
// @Param chatbotId path string true "Chatbot ID"
// @Param studentId query string false "Student ID"
// @Success 200 {object} response.Envelope
// @Router /teacher/chatbots/{chatbotId}/evaluations [get]
func (h *EvaluationHandler) List(c *gin.Context) {
	teacherID, ok := currentUserID(c)
	if !ok {
		return
	}
	items, err := h.service.ListResults(c.Request.Context(), teacherID, c.Param("chatbotId"), strings.TrimSpace(c.Query("studentId")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Export godoc
// @Summary Download goal achievement report
// @Tags Evaluations
// @Produce text/csv
// @Produce application/pdf
// @Param chatbotId path string true "Chatbot ID"
// @Param format query string false "csv or pdf" Enums(csv, pdf)
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /teacher/chatbots/{chatbotId}/evaluations/export [get]
func (h *EvaluationHandler) Export(c *gin.Context) {
	teacherID, ok := currentUserID(c)
	if !ok {
		return
	}
	file, err := h.exporter.EvaluationReport(c.Request.Context(), teacherID, c.Param("chatbotId"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": file.Filename}))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, file.ContentType, file.Data)
}
