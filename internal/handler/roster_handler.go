package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/techkwon/Qbot/internal/dto"
	"github.com/techkwon/Qbot/internal/models"
	"github.com/techkwon/Qbot/internal/service"
	"github.com/techkwon/Qbot/pkg/response"
)

// RosterHandler manages a teacher's classes and students.
type RosterHandler struct {
	service *service.RosterService
}

// NewRosterHandler constructs the handler.
func NewRosterHandler(svc *service.RosterService) *RosterHandler {
	return &RosterHandler{service: svc}
}

// ListClasses godoc
// @Summary List classes
// @Tags Roster
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /teacher/classes [get]
func (h *RosterHandler) ListClasses(c *gin.Context) {
	teacherID, ok := currentUserID(c)
	if !ok {
		return
	}
	classes, err := h.service.ListClasses(c.Request.Context(), teacherID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classes, nil)
}

// CreateClass godoc
// @Summary Create class
// @Tags Roster
// @Accept json
// @Produce json
// @Param payload body dto.CreateClassRequest true "Class payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /teacher/classes [post]
func (h *RosterHandler) CreateClass(c *gin.Context) {
	teacherID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req dto.CreateClassRequest
	if !bindJSON(c, &req, "invalid class payload") {
		return
	}
	class, err := h.service.CreateClass(c.Request.Context(), teacherID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, class)
}

// DeleteClass godoc
// @Summary Delete class
// @Tags Roster
// @Param classId path string true "Class ID"
// @Success 204
// @Router /teacher/classes/{classId} [delete]
func (h *RosterHandler) DeleteClass(c *gin.Context) {
	teacherID, ok := currentUserID(c)
	if !ok {
		return
	}
	if err := h.service.DeleteClass(c.Request.Context(), teacherID, c.Param("classId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListStudents godoc
// @Summary List students
// @Tags Roster
// @Produce json
// @Param classId query string false "Class ID"
// @Param search query string false "Name or student number"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /teacher/students [get]
func (h *RosterHandler) ListStudents(c *gin.Context) {
	teacherID, ok := currentUserID(c)
	if !ok {
		return
	}
	filter := models.StudentFilter{
		TeacherID: teacherID,
		ClassID:   strings.TrimSpace(c.Query("classId")),
		Search:    strings.TrimSpace(c.Query("search")),
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		filter.PageSize = size
	}

	students, pagination, err := h.service.ListStudents(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, pagination)
}

// CreateStudent godoc
// @Summary Create student
// @Description Creates the student's login and profile together.
// @Tags Roster
// @Accept json
// @Produce json
// @Param payload body dto.CreateStudentRequest true "Student payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /teacher/students [post]
func (h *RosterHandler) CreateStudent(c *gin.Context) {
	teacherID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req dto.CreateStudentRequest
	if !bindJSON(c, &req, "invalid student payload") {
		return
	}
	student, err := h.service.CreateStudent(c.Request.Context(), teacherID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, student)
}

// AssignClass godoc
// @Summary Move student to a class
// @Tags Roster
// @Accept json
// @Produce json
// @Param studentId path string true "Student ID"
// @Param payload body dto.AssignClassRequest true "Class assignment"
// @Success 200 {object} response.Envelope
// @Router /teacher/students/{studentId}/class [put]
func (h *RosterHandler) AssignClass(c *gin.Context) {
	teacherID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req dto.AssignClassRequest
	if !bindJSON(c, &req, "invalid class assignment") {
		return
	}
	student, err := h.service.AssignClass(c.Request.Context(), teacherID, c.Param("studentId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// DeleteStudent godoc
// @Summary Delete student
// @Tags Roster
// @Param studentId path string true "Student ID"
// @Success 204
// @Router /teacher/students/{studentId} [delete]
func (h *RosterHandler) DeleteStudent(c *gin.Context) {
	teacherID, ok := currentUserID(c)
	if !ok {
		return
	}
	if err := h.service.DeleteStudent(c.Request.Context(), teacherID, c.Param("studentId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
