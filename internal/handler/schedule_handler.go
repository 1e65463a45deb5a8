package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fenixctl/enroller/internal/model"
	"github.com/fenixctl/enroller/internal/response"
	"github.com/fenixctl/enroller/internal/service"
	"github.com/fenixctl/enroller/internal/validator"
)

// ScheduleHandler drives the conflict-aware shift selector.
type ScheduleHandler struct {
	schedule *service.ScheduleService
}

// NewScheduleHandler creates a new ScheduleHandler.
func NewScheduleHandler(schedule *service.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{schedule: schedule}
}

// Board godoc
// POST /api/v1/schedule/board
func (h *ScheduleHandler) Board(c *gin.Context) {
	var req model.BoardRequest
	if errs := validator.Bind(c, &req); errs != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, errs)
		return
	}

	board, err := h.schedule.Board(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, board)
}

// Confirm godoc
// POST /api/v1/schedule/confirm
func (h *ScheduleHandler) Confirm(c *gin.Context) {
	var req model.ConfirmScheduleRequest
	if errs := validator.Bind(c, &req); errs != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, errs)
		return
	}

	p, err := h.schedule.Confirm(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"goals": p.Goals, "selected_shifts": p.SelectedShifts})
}
