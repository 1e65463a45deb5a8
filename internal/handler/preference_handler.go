package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/fenixctl/enroller/internal/model"
	"github.com/fenixctl/enroller/internal/response"
	"github.com/fenixctl/enroller/internal/service"
	"github.com/fenixctl/enroller/internal/validator"
)

// PreferenceHandler exposes the saved filters and the goal queue.
type PreferenceHandler struct {
	prefs *service.PreferenceService
}

// NewPreferenceHandler creates a new PreferenceHandler.
func NewPreferenceHandler(prefs *service.PreferenceService) *PreferenceHandler {
	return &PreferenceHandler{prefs: prefs}
}

// Get godoc
// GET /api/v1/preferences
func (h *PreferenceHandler) Get(c *gin.Context) {
	p, err := h.prefs.Get(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, p)
}

// Update godoc
// PUT /api/v1/preferences
func (h *PreferenceHandler) Update(c *gin.Context) {
	var req model.UpdatePreferencesRequest
	if errs := validator.Bind(c, &req); errs != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, errs)
		return
	}

	p, err := h.prefs.Update(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, p)
}

// ─── Goal queue ─────────────────────────────────────────────────────

// ListGoals godoc
// GET /api/v1/goals
func (h *PreferenceHandler) ListGoals(c *gin.Context) {
	goals, err := h.prefs.Goals(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"goals": goals, "total": len(goals)})
}

// AddGoal godoc
// POST /api/v1/goals
func (h *PreferenceHandler) AddGoal(c *gin.Context) {
	var req model.RegistrationGoal
	if errs := validator.Bind(c, &req); errs != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, errs)
		return
	}

	goals, err := h.prefs.AddGoal(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"goals": goals, "total": len(goals)})
}

// RemoveGoal godoc
// DELETE /api/v1/goals/:index
func (h *PreferenceHandler) RemoveGoal(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidIndex)
		return
	}

	goals, err := h.prefs.RemoveGoal(c.Request.Context(), index)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"goals": goals, "total": len(goals)})
}

// ClearGoals godoc
// DELETE /api/v1/goals
func (h *PreferenceHandler) ClearGoals(c *gin.Context) {
	if err := h.prefs.ClearGoals(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"goals": []model.RegistrationGoal{}, "total": 0})
}
