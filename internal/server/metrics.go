package server

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the server's Prometheus instruments.
type Metrics struct {
	registry       *prometheus.Registry
	requestsTotal  *prometheus.CounterVec
	requestDur     *prometheus.HistogramVec
	activeRequests prometheus.Gauge
}

// NewMetrics creates the HTTP instruments on their own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	return &Metrics{
		registry: reg,
		requestsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "sausage",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests labeled by method, endpoint, and status code.",
		}, []string{"method", "endpoint", "status"}),
		requestDur: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sausage",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds, labeled by method, endpoint, and status.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 90.0},
		}, []string{"method", "endpoint", "status"}),
		activeRequests: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "sausage",
			Subsystem: "http",
			Name:      "active_requests",
			Help:      "Number of currently active HTTP requests.",
		}),
	}
}

// Registry exposes the underlying registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Middleware returns an Echo middleware that records HTTP metrics.
// Only registered route patterns become the endpoint label, so
// unmatched paths cannot blow up cardinality.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			m.activeRequests.Inc()
			err := next(c)
			m.activeRequests.Dec()

			endpoint := c.Path()
			if endpoint == "" {
				endpoint = "unmatched"
			}
			status := strconv.Itoa(c.Response().Status)
			method := c.Request().Method

			m.requestsTotal.WithLabelValues(method, endpoint, status).Inc()
			m.requestDur.WithLabelValues(method, endpoint, status).Observe(time.Since(start).Seconds())

			return err
		}
	}
}
