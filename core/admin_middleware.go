package core

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// AdminOnly ensures the resolved principal has the admin role.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := CurrentPrincipal(c)
		if !ok || p.Role != RoleAdmin {
			respondError(c, http.StatusForbidden, "FORBIDDEN", "accès réservé aux administrateurs")
			c.Abort()
			return
		}
		c.Next()
	}
}

// AuthorOrAdmin gates recipe mutation to author and admin roles.
func AuthorOrAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := CurrentPrincipal(c)
		if !ok {
			respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "connexion requise")
			c.Abort()
			return
		}
		if p.Role != RoleAuthor && p.Role != RoleAdmin {
			respondError(c, http.StatusForbidden, "FORBIDDEN", "accès réservé aux auteurs")
			c.Abort()
			return
		}
		c.Next()
	}
}
