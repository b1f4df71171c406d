package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/enrollment-engine/internal/dto"
	"github.com/noah-isme/enrollment-engine/internal/models"
	"github.com/noah-isme/enrollment-engine/internal/service"
	appErrors "github.com/noah-isme/enrollment-engine/pkg/errors"
	"github.com/noah-isme/enrollment-engine/pkg/response"
)

type termContextService interface {
	Current(ctx context.Context) (*models.TermWindow, error)
	Update(ctx context.Context, req service.UpdateTermWindowRequest, actor models.Actor) (*models.TermWindow, error)
}

type rolloverService interface {
	RolloverTerm(ctx context.Context, actor models.Actor) (*dto.RolloverResult, error)
}

// TermHandler exposes the term context and the end-of-term rollover.
type TermHandler struct {
	terms    termContextService
	rollover rolloverService
}

// NewTermHandler constructs TermHandler.
func NewTermHandler(terms termContextService, rollover rolloverService) *TermHandler {
	return &TermHandler{terms: terms, rollover: rollover}
}

// Context godoc
// @Summary Current term and enrollment window
// @Tags Terms
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /term-context [get]
func (h *TermHandler) Context(c *gin.Context) {
	window, err := h.terms.Current(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, window, nil)
}

// UpdateContext godoc
// @Summary Replace the term context
// @Tags Terms
// @Accept json
// @Produce json
// @Param payload body service.UpdateTermWindowRequest true "Term context"
// @Success 200 {object} response.Envelope
// @Router /term-context [put]
func (h *TermHandler) UpdateContext(c *gin.Context) {
	var req service.UpdateTermWindowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid term context payload"))
		return
	}
	window, err := h.terms.Update(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, window, nil)
}

// Rollover godoc
// @Summary Archive the term and close enrollment
// @Tags Terms
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /terms/rollover [post]
func (h *TermHandler) Rollover(c *gin.Context) {
	result, err := h.rollover.RolloverTerm(c.Request.Context(), actorFromContext(c))
	if err != nil {
		if result != nil {
			response.ErrorWithData(c, err, result)
			return
		}
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
