// Package socket mounts the realtime relay endpoint.
package socket

import (
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/chirino/conversation-service/internal/config"
	"github.com/chirino/conversation-service/internal/realtime"
	"github.com/chirino/conversation-service/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// MountRoutes mounts GET /socket. Authentication runs before the upgrade so
// rejected callers get a plain 401.
func MountRoutes(r *gin.Engine, hub *realtime.Hub, auth gin.HandlerFunc, cfg *config.Config) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg),
	}
	r.GET("/socket", auth, func(c *gin.Context) {
		userID := security.GetUserID(c)
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade has already written the error response.
			log.Debug("Socket upgrade failed", "user", userID, "err", err)
			return
		}
		hub.Serve(c.Request.Context(), userID, ws)
	})
}

// originChecker allows the configured CORS origins. Without CORS config the
// upgrader's same-origin default applies. Requests with no Origin header come
// from non-browser clients and are accepted.
func originChecker(cfg *config.Config) func(*http.Request) bool {
	if cfg == nil || !cfg.CORSEnabled || strings.TrimSpace(cfg.CORSOrigins) == "" {
		return nil
	}
	policy := security.ParseOriginPolicy(cfg.CORSOrigins)
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || policy.Allows(origin)
	}
}
