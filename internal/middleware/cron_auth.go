package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CronAuth guards the scheduler and admin endpoints with a shared secret.
type CronAuth struct {
	secret     string
	production bool
}

// NewCronAuth creates the middleware. An empty secret lets every request
// through outside production and rejects every request in production.
func NewCronAuth(secret string, production bool) *CronAuth {
	return &CronAuth{
		secret:     strings.TrimSpace(secret),
		production: production,
	}
}

// Require validates the secret from the Authorization bearer token or the
// X-Cron-Secret header.
func (ca *CronAuth) Require() gin.HandlerFunc {
	return func(c *gin.Context) {
		if ca.secret == "" {
			if ca.production {
				c.JSON(http.StatusUnauthorized, gin.H{
					"error":   "Unauthorized",
					"message": "Cron secret is not configured",
				})
				c.Abort()
				return
			}
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if token, ok := strings.CutPrefix(authHeader, "Bearer "); ok && ca.Validate(token) {
			c.Next()
			return
		}

		if ca.Validate(c.GetHeader("X-Cron-Secret")) {
			c.Next()
			return
		}

		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "Unauthorized",
			"message": "Valid cron secret required for this endpoint",
		})
		c.Abort()
	}
}

// Validate compares a presented secret in constant time.
func (ca *CronAuth) Validate(presented string) bool {
	if ca.secret == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(ca.secret)) == 1
}
