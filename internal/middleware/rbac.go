package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/techkwon/Qbot/internal/models"
	appErrors "github.com/techkwon/Qbot/pkg/errors"
	"github.com/techkwon/Qbot/pkg/response"
)

// RequireRoles lets the request through only when the authenticated user holds one of roles.
// ADMIN passes every role check.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles)+1)
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	allowed[models.RoleAdmin] = struct{}{}

	return func(c *gin.Context) {
		value, exists := c.Get(ContextUserKey)
		claims, ok := value.(*models.JWTClaims)
		if !exists || !ok || claims == nil {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthenticated, "authentication required"))
			c.Abort()
			return
		}

		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "insufficient role"))
			c.Abort()
			return
		}
		c.Next()
	}
}
