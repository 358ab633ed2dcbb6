package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-assign-api/internal/middleware"
	"github.com/noah-isme/school-assign-api/internal/service"
	appErrors "github.com/noah-isme/school-assign-api/pkg/errors"
	"github.com/noah-isme/school-assign-api/pkg/response"
)

// AssignmentHandler exposes the teacher-student assignment endpoints.
type AssignmentHandler struct {
	service *service.AssignmentService
}

// NewAssignmentHandler creates a new assignment handler.
func NewAssignmentHandler(svc *service.AssignmentService) *AssignmentHandler {
	return &AssignmentHandler{service: svc}
}

// Create godoc
// @Summary Assign a student to a teacher
// @Description Create a single teacher-student assignment
// @Tags Assignments
// @Accept json
// @Produce json
// @Param payload body service.CreateAssignmentRequest true "Assignment payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /assignments [post]
func (h *AssignmentHandler) Create(c *gin.Context) {
	var req service.CreateAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid assignment payload"))
		return
	}

	assignment, err := h.service.Create(c.Request.Context(), principalFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, assignment)
}

// List godoc
// @Summary List all assignments
// @Description Full teacher-student assignment ledger, newest first
// @Tags Assignments
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /assignments [get]
func (h *AssignmentHandler) List(c *gin.Context) {
	assignments, err := h.service.List(c.Request.Context(), principalFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, assignments, nil)
}

// BulkAssign godoc
// @Summary Assign many students to a teacher
// @Description Each student is processed independently; the report lists per-student failures
// @Tags Assignments
// @Accept json
// @Produce json
// @Param payload body service.BulkAssignRequest true "Bulk assignment payload"
// @Success 200 {object} response.Envelope
// @Success 207 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /assignments/bulk [post]
func (h *AssignmentHandler) BulkAssign(c *gin.Context) {
	var req service.BulkAssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid bulk assignment payload"))
		return
	}

	report, err := h.service.BulkAssign(c.Request.Context(), principalFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	status := http.StatusOK
	if len(report.FailedAssignments) > 0 {
		status = http.StatusMultiStatus
	}
	response.JSON(c, status, report, nil)
}

// ListByTeacher godoc
// @Summary List a teacher's students
// @Description Roster of students currently assigned to the teacher
// @Tags Assignments
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /teachers/{id}/students [get]
func (h *AssignmentHandler) ListByTeacher(c *gin.Context) {
	roster, err := h.service.ListByTeacher(c.Request.Context(), principalFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, roster, nil, middleware.ExtractMeta(c))
}

// ListByStudent godoc
// @Summary List a student's teachers
// @Description Teachers the student is currently assigned to
// @Tags Assignments
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /students/{id}/teachers [get]
func (h *AssignmentHandler) ListByStudent(c *gin.Context) {
	roster, err := h.service.ListByStudent(c.Request.Context(), principalFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, roster, nil, middleware.ExtractMeta(c))
}

// Remove godoc
// @Summary Remove an assignment
// @Description Delete a teacher-student assignment; existing results are kept
// @Tags Assignments
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /assignments/{id} [delete]
func (h *AssignmentHandler) Remove(c *gin.Context) {
	if err := h.service.Remove(c.Request.Context(), principalFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}
