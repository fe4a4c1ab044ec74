// auth.go validates the two bearer-token shapes the portal accepts: staff
// JWTs on the /api/v1 surface and portal session assertions on the
// token-gated /public feed endpoints.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/clienthub/clienthub/internal/auth"
)

// Context keys populated by the auth middleware.
const (
	StaffClaimsKey  = "staff_claims"
	PortalClaimsKey = "portal_claims"
)

// bearerToken extracts the Bearer token from the Authorization header, or ""
// when absent or malformed.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

// StaffAuthMiddleware requires a valid staff JWT and stores its claims in the
// context under StaffClaimsKey.
func StaffAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing or malformed authorization header",
			})
			return
		}

		claims, err := auth.ValidateStaffToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			return
		}

		c.Set(StaffClaimsKey, claims)
		c.Next()
	}
}

// StaffClaims returns the staff claims stored by StaffAuthMiddleware.
func StaffClaims(c *gin.Context) *auth.StaffClaims {
	v, ok := c.Get(StaffClaimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*auth.StaffClaims)
	return claims
}

// PortalAuthMiddleware requires a valid portal session assertion whose
// subject matches the hub in the route, and stores the claims under
// PortalClaimsKey. A token for one hub grants nothing on another.
func PortalAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing or malformed authorization header",
			})
			return
		}

		claims, err := auth.ValidatePortalToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			return
		}

		if claims.Subject != c.Param("hubId") {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Token not valid for this hub",
			})
			return
		}

		c.Set(PortalClaimsKey, claims)
		c.Next()
	}
}

// PortalClaims returns the portal claims stored by PortalAuthMiddleware.
func PortalClaims(c *gin.Context) *auth.PortalClaims {
	v, ok := c.Get(PortalClaimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*auth.PortalClaims)
	return claims
}
