package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-assign-api/internal/middleware"
	"github.com/noah-isme/school-assign-api/internal/models"
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

// principalFromContext derives the acting identity from verified claims. An
// empty principal is returned for unauthenticated requests so the services
// can reject them uniformly.
func principalFromContext(c *gin.Context) models.Principal {
	return claimsFromContext(c).Principal()
}
