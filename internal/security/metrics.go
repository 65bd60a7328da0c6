package security

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "conversation_service"

// Collectors stay nil until InitMetrics runs; the recording helpers below are
// no-ops until then so packages can be used without a registry in unit tests.
var (
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	storeLatency *prometheus.HistogramVec
	cacheLookups *prometheus.CounterVec
	dbPool       *prometheus.GaugeVec

	socketConnections prometheus.Gauge
	socketEvents      *prometheus.CounterVec
)

var labelKeyPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ParseMetricsLabels turns "k=v,k2=v2" into constant Prometheus labels after
// expanding environment references such as ${POD_NAME}.
func ParseMetricsLabels(s string) (prometheus.Labels, error) {
	s = strings.TrimSpace(os.Expand(s, os.Getenv))
	if s == "" {
		return nil, nil
	}
	labels := prometheus.Labels{}
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("metrics label %q is not key=value", pair)
		}
		if !labelKeyPattern.MatchString(k) {
			return nil, fmt.Errorf("metrics label key %q is not a valid identifier", k)
		}
		labels[k] = v
	}
	return labels, nil
}

var metricsOnce sync.Once

// InitMetrics registers the service collectors on the default registry with
// constLabels attached. Only the first call has any effect.
func InitMetrics(constLabels prometheus.Labels) {
	metricsOnce.Do(func() {
		f := promauto.With(prometheus.WrapRegistererWith(constLabels, prometheus.DefaultRegisterer))

		requestsTotal = f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "requests_total",
			Help: "HTTP requests by method, route pattern and status",
		}, []string{"method", "route", "status"})
		requestDuration = f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Name: "request_duration_seconds",
			Help: "HTTP request latency", Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"})

		storeLatency = f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Name: "store_latency_seconds",
			Help: "Conversation store latency by operation", Buckets: prometheus.DefBuckets,
		}, []string{"operation"})
		cacheLookups = f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "profile_cache_lookups_total",
			Help: "User profile cache lookups by result",
		}, []string{"result"})
		dbPool = f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "db_pool_connections",
			Help: "SQL connection pool size; state is open or max",
		}, []string{"state"})

		socketConnections = f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "socket_connections",
			Help: "Open realtime connections",
		})
		socketEvents = f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "socket_events_total",
			Help: "Realtime events received, by event and outcome",
		}, []string{"event", "outcome"})
	})
}

// ObserveStoreOp records the latency of a store operation started at start.
func ObserveStoreOp(op string, start time.Time) {
	if storeLatency != nil {
		storeLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

// RecordCacheLookup counts profile cache hits and misses.
func RecordCacheLookup(hits, misses int) {
	if cacheLookups == nil {
		return
	}
	cacheLookups.WithLabelValues("hit").Add(float64(hits))
	cacheLookups.WithLabelValues("miss").Add(float64(misses))
}

// SetDBPool publishes SQL pool statistics.
func SetDBPool(open, max int) {
	if dbPool == nil {
		return
	}
	dbPool.WithLabelValues("open").Set(float64(open))
	dbPool.WithLabelValues("max").Set(float64(max))
}

// SocketOpened and SocketClosed track the live realtime connection count.
func SocketOpened() {
	if socketConnections != nil {
		socketConnections.Inc()
	}
}

func SocketClosed() {
	if socketConnections != nil {
		socketConnections.Dec()
	}
}

// CountSocketEvent counts one inbound realtime event.
func CountSocketEvent(event, outcome string) {
	if socketEvents != nil {
		socketEvents.WithLabelValues(event, outcome).Inc()
	}
}

// MetricsMiddleware records request counts and latency keyed by route pattern.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if requestsTotal == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		requestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		requestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}
