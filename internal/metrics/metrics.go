package metrics

import (
	"net/http"
	"strconv"
	"time"

	"convoyhub/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "convoyhub",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "convoyhub",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "convoyhub",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "path"},
	)

	convoyOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "convoyhub",
			Subsystem: "convoy",
			Name:      "operations_total",
			Help:      "Convoy operations by name and outcome code.",
		},
		[]string{"op", "result"},
	)

	locationUpdates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "convoyhub",
			Subsystem: "convoy",
			Name:      "location_updates_total",
			Help:      "Accepted convoy center updates.",
		},
	)

	wsConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "convoyhub",
			Subsystem: "ws",
			Name:      "connections",
			Help:      "Open convoy websocket connections.",
		},
	)

	busEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "convoyhub",
			Subsystem: "ws",
			Name:      "bus_events_total",
			Help:      "Convoy events published to the fan-out bus.",
		},
		[]string{"type", "result"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		convoyOps,
		locationUpdates,
		wsConnections,
		busEvents,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// GinMiddleware records request count and latency labelled by route pattern.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "/metrics" {
			c.Next()
			return
		}
		if path == "" {
			path = "unmatched"
		}
		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		c.Next()

		httpRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// ObserveConvoyOp counts one convoy operation, labelled with the error kind.
func ObserveConvoyOp(op string, err error) {
	convoyOps.WithLabelValues(op, domain.Code(err)).Inc()
	if op == "update_location" && err == nil {
		locationUpdates.Inc()
	}
}

func WSConnected()    { wsConnections.Inc() }
func WSDisconnected() { wsConnections.Dec() }

func ObserveBusPublish(eventType string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	busEvents.WithLabelValues(eventType, result).Inc()
}
