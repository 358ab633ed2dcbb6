package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-assign-api/internal/models"
	"github.com/noah-isme/school-assign-api/internal/service"
	appErrors "github.com/noah-isme/school-assign-api/pkg/errors"
	"github.com/noah-isme/school-assign-api/pkg/response"
)

// SMSHandler exposes guardian notification endpoints.
type SMSHandler struct {
	service *service.SMSService
}

// NewSMSHandler creates a new SMS handler.
func NewSMSHandler(svc *service.SMSService) *SMSHandler {
	return &SMSHandler{service: svc}
}

// SendProgressAlert godoc
// @Summary Send a guardian progress alert
// @Description Queue an SMS to the student's guardian; delivery is asynchronous
// @Tags Notifications
// @Accept json
// @Produce json
// @Param payload body models.ProgressAlertRequest true "Alert payload"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /notifications/progress-alert [post]
func (h *SMSHandler) SendProgressAlert(c *gin.Context) {
	var req models.ProgressAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid alert payload"))
		return
	}

	log, err := h.service.SendProgressAlert(c.Request.Context(), principalFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusAccepted, log, nil)
}

// History godoc
// @Summary List SMS delivery history
// @Description Recent outbound messages with delivery status
// @Tags Notifications
// @Produce json
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /notifications/history [get]
func (h *SMSHandler) History(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	logs, err := h.service.History(c.Request.Context(), principalFromContext(c), limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, logs, nil)
}
