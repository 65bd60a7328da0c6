package serve

import (
	"net/http"
	"strings"

	"github.com/chirino/conversation-service/internal/security"
	"github.com/gin-gonic/gin"
)

var (
	corsAllowHeaders = strings.Join([]string{"Authorization", "Content-Type", security.HeaderAuthToken}, ", ")
	corsAllowMethods = strings.Join([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions}, ", ")
)

// corsMiddleware echoes allowed origins back to the browser. Credentials are
// only allowed for an explicit origin list, never for a wildcard policy.
// Preflight requests end here with 204 whether or not the origin was accepted.
func corsMiddleware(policy *security.OriginPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && policy.Allows(origin) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			if !policy.AllowsAny() {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			if c.Request.Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
				h.Set("Access-Control-Allow-Methods", corsAllowMethods)
				h.Set("Access-Control-Max-Age", "600")
			}
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
