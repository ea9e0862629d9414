package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/plancheck/compliance-api/internal/middleware"
	"github.com/plancheck/compliance-api/internal/models"
	"github.com/plancheck/compliance-api/internal/service"
	"github.com/plancheck/compliance-api/pkg/response"
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

// authorizeCaller runs the request through the authorization gate. On
// failure it writes the error response and returns false; handlers
// should return immediately in that case.
func authorizeCaller(c *gin.Context, auth *service.AuthService, roles ...models.UserRole) (*models.CallerIdentity, bool) {
	caller, err := auth.Authorize(c.Request.Context(), middleware.BearerToken(c), roles...)
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	return caller, true
}
