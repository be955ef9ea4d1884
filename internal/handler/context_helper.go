package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/techkwon/Qbot/internal/middleware"
	"github.com/techkwon/Qbot/internal/models"
	appErrors "github.com/techkwon/Qbot/pkg/errors"
	"github.com/techkwon/Qbot/pkg/response"
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

// currentUserID writes an UNAUTHENTICATED response and returns false when no claims are present.
func currentUserID(c *gin.Context) (string, bool) {
	claims := claimsFromContext(c)
	if claims == nil || claims.UserID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthenticated, "authentication required"))
		return "", false
	}
	return claims.UserID, true
}

func bindJSON(c *gin.Context, dest interface{}, message string) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message))
		return false
	}
	return true
}
