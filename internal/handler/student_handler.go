package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/enrollment-engine/internal/dto"
	"github.com/noah-isme/enrollment-engine/internal/models"
	appErrors "github.com/noah-isme/enrollment-engine/pkg/errors"
	"github.com/noah-isme/enrollment-engine/pkg/response"
)

type studentEligibilityService interface {
	SetEligibility(ctx context.Context, studentID string, enabled bool, actor models.Actor) (*models.Student, error)
}

// StudentHandler administers per-student enrollment eligibility.
type StudentHandler struct {
	students studentEligibilityService
}

// NewStudentHandler constructs StudentHandler.
func NewStudentHandler(students studentEligibilityService) *StudentHandler {
	return &StudentHandler{students: students}
}

// SetEligibility godoc
// @Summary Enable or disable enrollment for a student
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body dto.SetEligibilityRequest true "Eligibility payload"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/eligibility [put]
func (h *StudentHandler) SetEligibility(c *gin.Context) {
	var req dto.SetEligibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "enabled is required"))
		return
	}
	student, err := h.students.SetEligibility(c.Request.Context(), c.Param("id"), *req.Enabled, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}
