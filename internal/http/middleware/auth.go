package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/atiendo/backend/internal/auth"
)

const claimsKey = "auth_claims"

// BearerToken returns the token from an "Authorization: Bearer" header, or "".
func BearerToken(c *gin.Context) string {
	h := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// Auth requires a valid dashboard bearer token.
func Auth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			abortUnauthorized(c, "Missing bearer token")
			return
		}
		claims, err := auth.Parse(secret, token)
		if err != nil {
			abortUnauthorized(c, "Invalid token")
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":   message,
		"code":    "UNAUTHORIZED",
		"details": nil,
	})
}

func Claims(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}

func TenantID(c *gin.Context) string {
	if claims, ok := Claims(c); ok {
		return claims.TenantID
	}
	return ""
}
