package handler

import (
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-assign-api/internal/middleware"
	"github.com/noah-isme/school-assign-api/internal/service"
	appErrors "github.com/noah-isme/school-assign-api/pkg/errors"
	"github.com/noah-isme/school-assign-api/pkg/response"
)

// ResultHandler exposes the graded-record endpoints and result-sheet exports.
type ResultHandler struct {
	service *service.ResultService
	exports *service.ExportService
}

// NewResultHandler creates a new result handler.
func NewResultHandler(svc *service.ResultService, exports *service.ExportService) *ResultHandler {
	return &ResultHandler{service: svc, exports: exports}
}

// Create godoc
// @Summary Record a result
// @Description Record marks for an assigned student; admins may record on behalf of any teacher
// @Tags Results
// @Accept json
// @Produce json
// @Param payload body service.CreateResultRequest true "Result payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /results [post]
func (h *ResultHandler) Create(c *gin.Context) {
	var req service.CreateResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid result payload"))
		return
	}

	result, err := h.service.Create(c.Request.Context(), principalFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, result)
}

// Update godoc
// @Summary Update a result
// @Description Overwrite the marks on an existing result
// @Tags Results
// @Accept json
// @Produce json
// @Param id path string true "Result ID"
// @Param payload body service.UpdateResultRequest true "Marks payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /results/{id} [put]
func (h *ResultHandler) Update(c *gin.Context) {
	var req service.UpdateResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid marks payload"))
		return
	}

	result, err := h.service.Update(c.Request.Context(), principalFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result, nil)
}

// Delete godoc
// @Summary Delete a result
// @Description Remove a graded record
// @Tags Results
// @Produce json
// @Param id path string true "Result ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /results/{id} [delete]
func (h *ResultHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), principalFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// ListForStudent godoc
// @Summary List a student's results
// @Description Full result history for the student, including rows whose assignment was later removed
// @Tags Results
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /students/{id}/results [get]
func (h *ResultHandler) ListForStudent(c *gin.Context) {
	results, err := h.service.ListForStudent(c.Request.Context(), principalFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, results, nil, middleware.ExtractMeta(c))
}

// ListForTeacher godoc
// @Summary List a teacher's recorded results
// @Description Results the teacher recorded for students still on their roster
// @Tags Results
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /teachers/{id}/results [get]
func (h *ResultHandler) ListForTeacher(c *gin.Context) {
	results, err := h.service.ListForTeacher(c.Request.Context(), principalFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, results, nil, middleware.ExtractMeta(c))
}

// Export godoc
// @Summary Export a student's result sheet
// @Description Render the student's results as CSV or PDF and return a signed download link
// @Tags Results
// @Produce json
// @Param id path string true "Student ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /students/{id}/results/export [get]
func (h *ResultHandler) Export(c *gin.Context) {
	format := service.ExportFormat(strings.ToLower(c.DefaultQuery("format", "csv")))

	res, err := h.exports.StudentResultSheet(c.Request.Context(), principalFromContext(c), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res, nil)
}

// Download streams a previously exported sheet. The signed token in the query
// string is the sole credential; the route is unauthenticated.
//
// Download godoc
// @Summary Download an exported result sheet
// @Tags Results
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Router /exports/download [get]
func (h *ResultHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "download token required"))
		return
	}

	file, filename, err := h.exports.OpenDownload(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	contentType := "text/csv"
	if filepath.Ext(filename) == ".pdf" {
		contentType = "application/pdf"
	}

	c.Header("Content-Disposition", `attachment; filename="`+filepath.Base(filename)+`"`)
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, file)
}
