package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/enrollment-engine/internal/models"
	"github.com/noah-isme/enrollment-engine/pkg/response"
)

type sectionRosterService interface {
	ListSection(ctx context.Context, sectionID string, activeOnly bool) ([]models.EnrollmentDetail, error)
}

type occupancyService interface {
	Occupancy(ctx context.Context, sectionID, term string) (*models.Occupancy, error)
}

type currentTermResolver interface {
	CurrentTerm(ctx context.Context) (string, error)
}

// SectionHandler exposes section rosters and seat usage.
type SectionHandler struct {
	roster    sectionRosterService
	occupancy occupancyService
	terms     currentTermResolver
}

// NewSectionHandler constructs SectionHandler.
func NewSectionHandler(roster sectionRosterService, occupancy occupancyService, terms currentTermResolver) *SectionHandler {
	return &SectionHandler{roster: roster, occupancy: occupancy, terms: terms}
}

// Roster godoc
// @Summary List the enrollments of a section
// @Tags Sections
// @Produce json
// @Param id path string true "Section ID"
// @Param activeOnly query bool false "Only ACTIVE enrollments"
// @Success 200 {object} response.Envelope
// @Router /sections/{id}/enrollments [get]
func (h *SectionHandler) Roster(c *gin.Context) {
	items, err := h.roster.ListSection(c.Request.Context(), c.Param("id"), activeOnlyQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Occupancy godoc
// @Summary Seat usage of a section
// @Tags Sections
// @Produce json
// @Param id path string true "Section ID"
// @Param term query string false "Term (defaults to current)"
// @Success 200 {object} response.Envelope
// @Router /sections/{id}/occupancy [get]
func (h *SectionHandler) Occupancy(c *gin.Context) {
	term := c.Query("term")
	if term == "" {
		current, err := h.terms.CurrentTerm(c.Request.Context())
		if err != nil {
			response.Error(c, err)
			return
		}
		term = current
	}
	occupancy, err := h.occupancy.Occupancy(c.Request.Context(), c.Param("id"), term)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, occupancy, nil)
}
