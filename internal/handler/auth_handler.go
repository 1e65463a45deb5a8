package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/fenixctl/enroller/internal/model"
	"github.com/fenixctl/enroller/internal/response"
	"github.com/fenixctl/enroller/internal/service"
	"github.com/fenixctl/enroller/internal/validator"
)

// AuthHandler issues control API tokens.
type AuthHandler struct {
	authService *service.AuthService
	log         zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *service.AuthService, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		log:         log.With().Str("component", "auth_handler").Logger(),
	}
}

// Login godoc
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if errs := validator.Bind(c, &req); errs != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, errs)
		return
	}

	resp, err := h.authService.Login(req.Password)
	switch {
	case errors.Is(err, service.ErrAuthDisabled):
		response.Fail(c, http.StatusServiceUnavailable, response.ErrAuthDisabled)
		return
	case errors.Is(err, service.ErrInvalidCredentials):
		h.log.Warn().Str("ip", c.ClientIP()).Msg("Rejected control login")
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	case err != nil:
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, resp)
}
