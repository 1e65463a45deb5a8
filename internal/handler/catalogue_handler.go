package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fenixctl/enroller/internal/model"
	"github.com/fenixctl/enroller/internal/response"
	"github.com/fenixctl/enroller/internal/service"
	"github.com/fenixctl/enroller/internal/validator"
)

// CatalogueHandler serves degrees and classified course offerings.
type CatalogueHandler struct {
	offerings *service.OfferingService
	prefs     *service.PreferenceService
}

// NewCatalogueHandler creates a new CatalogueHandler.
func NewCatalogueHandler(offerings *service.OfferingService, prefs *service.PreferenceService) *CatalogueHandler {
	return &CatalogueHandler{offerings: offerings, prefs: prefs}
}

// Degrees godoc
// GET /api/v1/degrees?lang=&term=
func (h *CatalogueHandler) Degrees(c *gin.Context) {
	var q model.DegreesQuery
	if errs := validator.BindQuery(c, &q); errs != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, errs)
		return
	}
	p, err := h.prefs.Get(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}

	degrees, err := h.offerings.Degrees(c.Request.Context(), or(q.Lang, p.Lang), or(q.Term, p.Term))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"degrees": degrees, "total": len(degrees)})
}

// Offerings godoc
// GET /api/v1/degrees/:id/offerings?semester=&period=&campus=&q=
func (h *CatalogueHandler) Offerings(c *gin.Context) {
	var q model.OfferingsQuery
	if errs := validator.BindQuery(c, &q); errs != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, errs)
		return
	}
	p, err := h.prefs.Get(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}

	query := service.OfferingQuery{
		DegreeID:      c.Param("id"),
		DegreeAcronym: q.Acronym,
		Lang:          or(q.Lang, p.Lang),
		Term:          or(q.Term, p.Term),
	}
	if query.DegreeAcronym == "" && query.DegreeID == p.DegreeID {
		query.DegreeAcronym = p.DegreeAcronym
	}

	all, err := h.offerings.Offerings(c.Request.Context(), query)
	if err != nil {
		fail(c, err)
		return
	}
	filtered := h.offerings.Filter(all, service.OfferingFilter{
		Semester: q.Semester,
		Period:   q.Period,
		Campus:   q.Campus,
		Query:    q.Q,
	})
	response.Success(c, http.StatusOK, gin.H{"offerings": filtered, "total": len(filtered), "unfiltered": len(all)})
}

func or(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
