package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/enrollment-engine/internal/middleware"
	"github.com/noah-isme/enrollment-engine/internal/models"
)

// Handlers groups the API handlers mounted under the API prefix.
type Handlers struct {
	Enrollments *EnrollmentHandler
	Sections    *SectionHandler
	Terms       *TermHandler
	Students    *StudentHandler
}

// RegisterRoutes mounts the enrollment API on api. auth must populate
// middleware.ContextUserKey before the role guards run.
func RegisterRoutes(api *gin.RouterGroup, auth gin.HandlerFunc, h Handlers) {
	secured := api.Group("")
	secured.Use(auth)

	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	staff := middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin)
	studentOnly := middleware.RequireRoles(models.RoleStudent)

	enrollments := secured.Group("/enrollments")
	enrollments.POST("", studentOnly, h.Enrollments.Enroll)
	enrollments.GET("/me", studentOnly, h.Enrollments.ListMine)
	enrollments.DELETE("/sections/:sectionId", studentOnly, h.Enrollments.Withdraw)
	enrollments.GET("", adminOnly, h.Enrollments.List)
	enrollments.GET("/:id", adminOnly, h.Enrollments.Get)
	enrollments.PUT("/:id/grade", staff, h.Enrollments.AssignGrade)
	enrollments.PATCH("/:id/status", adminOnly, h.Enrollments.SetStatus)
	enrollments.DELETE("/:id", adminOnly, h.Enrollments.Delete)

	sections := secured.Group("/sections")
	sections.GET("/:id/enrollments", staff, h.Sections.Roster)
	sections.GET("/:id/occupancy", h.Sections.Occupancy)

	secured.GET("/term-context", h.Terms.Context)
	secured.PUT("/term-context", adminOnly, h.Terms.UpdateContext)
	secured.POST("/terms/rollover", adminOnly, h.Terms.Rollover)

	secured.PUT("/students/:id/eligibility", adminOnly, h.Students.SetEligibility)
}
