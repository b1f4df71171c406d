package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/enrollment-engine/internal/middleware"
	"github.com/noah-isme/enrollment-engine/internal/models"
	appErrors "github.com/noah-isme/enrollment-engine/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// actorFromContext describes the caller for the audit trail.
func actorFromContext(c *gin.Context) models.Actor {
	actor := models.Actor{IPAddress: c.ClientIP()}
	if c.Request != nil {
		actor.UserAgent = c.Request.UserAgent()
	}
	if claims := claimsFromContext(c); claims != nil {
		actor.UserID = claims.UserID
		actor.Role = claims.Role
	}
	return actor
}

func requireClaims(c *gin.Context) (*models.JWTClaims, error) {
	claims := claimsFromContext(c)
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	return claims, nil
}

// activeOnlyQuery reads the activeOnly flag; anything unparsable counts as false.
func activeOnlyQuery(c *gin.Context) bool {
	active, err := strconv.ParseBool(c.DefaultQuery("activeOnly", "false"))
	return err == nil && active
}
