package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fenixctl/enroller/internal/model"
	"github.com/fenixctl/enroller/internal/response"
	"github.com/fenixctl/enroller/internal/service"
	"github.com/fenixctl/enroller/internal/validator"
)

// EnrollmentHandler starts, cancels and reports on enrollment runs.
type EnrollmentHandler struct {
	runs *service.EnrollmentService
}

// NewEnrollmentHandler creates a new EnrollmentHandler.
func NewEnrollmentHandler(runs *service.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{runs: runs}
}

// Start godoc
// POST /api/v1/enrollment/start
// The body is optional; {"at": "HH:MM:SS"} schedules the run.
func (h *EnrollmentHandler) Start(c *gin.Context) {
	var req model.StartRunRequest
	if c.Request.ContentLength != 0 {
		if errs := validator.Bind(c, &req); errs != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, errs)
			return
		}
	}

	status, err := h.runs.Start(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusAccepted, status)
}

// Cancel godoc
// POST /api/v1/enrollment/cancel
func (h *EnrollmentHandler) Cancel(c *gin.Context) {
	if err := h.runs.Cancel(); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusAccepted, h.runs.Status(c.Request.Context()))
}

// Status godoc
// GET /api/v1/enrollment/status
func (h *EnrollmentHandler) Status(c *gin.Context) {
	response.Success(c, http.StatusOK, h.runs.Status(c.Request.Context()))
}
