package middleware

import (
	"slices"

	"github.com/gin-gonic/gin"

	"github.com/alumni-connect/backend/internal/models"
	"github.com/alumni-connect/backend/pkg/response"
)

// RequireRole admits staff whose token carries one of roles. It must run after JWT.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := Role(c)
		if !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		if !slices.Contains(roles, role) {
			response.Forbidden(c, string(role)+" accounts cannot use this endpoint")
			c.Abort()
			return
		}
		c.Next()
	}
}

// Role returns the staff role the JWT middleware stored on c. Unknown roles report false.
func Role(c *gin.Context) (models.Role, bool) {
	v, ok := c.Get(ContextUserRole)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	role := models.Role(s)
	return role, role.Valid()
}
