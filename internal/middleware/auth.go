package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/solvio/solvio-core/internal/principal"
	"github.com/solvio/solvio-core/internal/rbac"
)

// RequireAuthenticated rejects requests when no principal is signed in.
// The authenticated principal id is placed in the context as "user_id".
func RequireAuthenticated(source principal.Source) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := source.Current()
		if p == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "not authenticated",
			})
			return
		}
		c.Set("user_id", p.ID)
		c.Next()
	}
}

// RequirePermission gates an endpoint on a guard permission check. The check
// reads the principal snapshot and performs no I/O.
func RequirePermission(guard *principal.Guard, perm rbac.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !guard.HasPermission(perm) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":      "permission denied",
				"permission": string(perm),
			})
			return
		}
		c.Next()
	}
}

// RequireAnyRole gates an endpoint on holding one of the given roles
func RequireAnyRole(guard *principal.Guard, roles ...rbac.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !guard.HasAnyRole(roles...) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "insufficient role",
			})
			return
		}
		c.Next()
	}
}
