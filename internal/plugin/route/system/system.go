// Package system serves the liveness, readiness and metrics endpoints.
package system

import (
	"net/http"
	"sync"
	"sync/atomic"

	registryroute "github.com/chirino/conversation-service/internal/registry/route"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	stateStarting int32 = iota
	stateReady
	stateDraining
)

var (
	state atomic.Int32

	detailsMu sync.RWMutex
	details   = map[string]func() any{}
)

// MarkReady signals that StartServer has completed and traffic may flow.
func MarkReady() {
	state.Store(stateReady)
}

// MarkDraining fails readiness so load balancers stop routing new traffic
// while open requests and sockets finish.
func MarkDraining() {
	state.Store(stateDraining)
}

// SetDetail publishes a value under name in the /health response, for
// example the number of open sockets. A nil fn removes it.
func SetDetail(name string, fn func() any) {
	detailsMu.Lock()
	defer detailsMu.Unlock()
	if fn == nil {
		delete(details, name)
		return
	}
	details[name] = fn
}

func health(c *gin.Context) {
	body := gin.H{"status": "ok"}
	detailsMu.RLock()
	for name, fn := range details {
		body[name] = fn()
	}
	detailsMu.RUnlock()
	c.JSON(http.StatusOK, body)
}

func readiness(c *gin.Context) {
	switch state.Load() {
	case stateReady:
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	case stateDraining:
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "draining"})
	default:
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
	}
}

func init() {
	registryroute.Register(registryroute.Plugin{
		Name: "system",
		Type: registryroute.TypeManagement,
		Loader: func(r *gin.Engine) error {
			r.GET("/health", health)
			r.GET("/ready", readiness)
			r.GET("/metrics", gin.WrapH(promhttp.Handler()))
			return nil
		},
	})
}
