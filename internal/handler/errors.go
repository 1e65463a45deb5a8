package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fenixctl/enroller/internal/fenix"
	"github.com/fenixctl/enroller/internal/response"
	"github.com/fenixctl/enroller/internal/schedule"
	"github.com/fenixctl/enroller/internal/service"
)

// failure maps a known service error onto a status and code.
type failure struct {
	target error
	status int
	code   response.ErrCode
	detail bool
}

var failures = []failure{
	{service.ErrNoDegree, http.StatusBadRequest, response.ErrNoDegree, false},
	{service.ErrNoCourses, http.StatusNotFound, response.ErrNoCourses, false},
	{service.ErrGoalIndex, http.StatusNotFound, response.ErrInvalidIndex, false},
	{schedule.ErrShiftConflict, http.StatusConflict, response.ErrShiftConflict, true},
	{schedule.ErrUnknownShift, http.StatusBadRequest, response.ErrUnknownShift, true},
	{schedule.ErrUnknownCourse, http.StatusBadRequest, response.ErrUnknownShift, true},
	{service.ErrPortalNotReady, http.StatusConflict, response.ErrPortalNotReady, false},
	{service.ErrPortalBusy, http.StatusConflict, response.ErrPortalBusy, false},
	{service.ErrRunActive, http.StatusConflict, response.ErrRunActive, false},
	{service.ErrNoActiveRun, http.StatusConflict, response.ErrNoActiveRun, false},
	{service.ErrNoGoals, http.StatusBadRequest, response.ErrNoGoals, false},
	{service.ErrInvalidStartTime, http.StatusBadRequest, response.ErrValidation, true},
	{fenix.ErrNotFound, http.StatusNotFound, response.ErrNotFound, false},
	{fenix.ErrUnexpectedStatus, http.StatusBadGateway, response.ErrPortalUpstream, true},
}

// isKnown reports whether err maps onto a specific error code.
func isKnown(err error) bool {
	for _, f := range failures {
		if errors.Is(err, f.target) {
			return true
		}
	}
	return false
}

// fail writes the envelope for err. Unknown errors are internal.
func fail(c *gin.Context, err error) {
	for _, f := range failures {
		if !errors.Is(err, f.target) {
			continue
		}
		if f.detail {
			response.FailWithDetail(c, f.status, f.code, err.Error())
		} else {
			response.Fail(c, f.status, f.code)
		}
		return
	}
	_ = c.Error(err)
	response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
}
