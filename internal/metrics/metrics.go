// Package metrics owns the Prometheus registry of the service.  It
// records scheduling outcomes and HTTP request latency and serves them
// on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/cinema-showtime-scheduler/internal/schedule"
)

// Metrics holds the collectors.  It implements schedule.Recorder.
type Metrics struct {
	reg        *prometheus.Registry
	writes     *prometheus.CounterVec
	conflicts  *prometheus.CounterVec
	batchItems *prometheus.CounterVec
	requests   *prometheus.HistogramVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		writes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "showtime_writes_total",
			Help: "Showtime write operations by operation and outcome.",
		}, []string{"op", "result"}),
		conflicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "showtime_conflicts_total",
			Help: "Rejected overlapping writes by the layer that caught them.",
		}, []string{"source"}),
		batchItems: f.NewCounterVec(prometheus.CounterOpts{
			Name: "showtime_batch_items_total",
			Help: "Batch items processed by outcome.",
		}, []string{"result"}),
		requests: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route, method and status.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"route", "method", "status"}),
	}
}

func result(kind schedule.Kind) string {
	if kind == "" {
		return "ok"
	}
	return string(kind)
}

// Write counts a create, update or cancel outcome.
func (m *Metrics) Write(op string, kind schedule.Kind) {
	m.writes.WithLabelValues(op, result(kind)).Inc()
}

// Conflict counts an overlap rejection from the pre-check or the storage layer.
func (m *Metrics) Conflict(source string) {
	m.conflicts.WithLabelValues(source).Inc()
}

// BatchItem counts one processed batch item.
func (m *Metrics) BatchItem(kind schedule.Kind) {
	m.batchItems.WithLabelValues(result(kind)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Middleware observes the latency of every request keyed by route
// template, so /v1/showtimes/:id stays a single series.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			m.requests.WithLabelValues(c.Path(), c.Request().Method, strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}
