package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/fenixctl/enroller/internal/model"
	"github.com/fenixctl/enroller/internal/response"
	"github.com/fenixctl/enroller/internal/service"
	"github.com/fenixctl/enroller/internal/validator"
)

// PortalHandler manages the browser session logged into the portal.
type PortalHandler struct {
	portal *service.PortalService
	log    zerolog.Logger
}

// NewPortalHandler creates a new PortalHandler.
func NewPortalHandler(portal *service.PortalService, log zerolog.Logger) *PortalHandler {
	return &PortalHandler{
		portal: portal,
		log:    log.With().Str("component", "portal_handler").Logger(),
	}
}

// Login godoc
// POST /api/v1/portal/login
func (h *PortalHandler) Login(c *gin.Context) {
	var req model.PortalLoginRequest
	if errs := validator.Bind(c, &req); errs != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, errs)
		return
	}

	err := h.portal.Login(c.Request.Context(), req.Username, req.Password)
	switch {
	case err == nil:
	case isKnown(err):
		fail(c, err)
		return
	default:
		h.log.Error().Err(err).Str("username", req.Username).Msg("Portal login failed")
		response.FailWithDetail(c, http.StatusBadGateway, response.ErrPortalLogin, err.Error())
		return
	}
	response.Success(c, http.StatusOK, h.portal.Status())
}

// Status godoc
// GET /api/v1/portal
func (h *PortalHandler) Status(c *gin.Context) {
	response.Success(c, http.StatusOK, h.portal.Status())
}
