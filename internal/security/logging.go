package security

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

// AccessLogMiddleware logs one line per request, using the route pattern as
// the path so conversation ids stay out of the log. Server errors log at warn
// level. Requests to skipPaths are not logged.
func AccessLogMiddleware(skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}
	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		status := c.Writer.Status()
		fields := []any{
			"method", c.Request.Method,
			"path", path,
			"user", GetUserID(c),
			"status", status,
			"bytes", c.Writer.Size(),
			"duration", time.Since(start),
			"clientIP", c.ClientIP(),
		}
		if status >= http.StatusInternalServerError {
			log.Warn("HTTP request", fields...)
			return
		}
		log.Info("HTTP request", fields...)
	}
}
