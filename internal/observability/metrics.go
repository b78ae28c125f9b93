package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by the provider client, the
// dispatch worker and its HTTP surface.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDuration     *prometheus.HistogramVec
	providerRequestsTotal   *prometheus.CounterVec
	providerRequestDuration *prometheus.HistogramVec
	dispatchesTotal         *prometheus.CounterVec
	deliveryStatesTotal     *prometheus.CounterVec
	workerInflight          *prometheus.GaugeVec
	redeliveriesTotal       *prometheus.CounterVec
}

const metricsNamespace = "plusserver"

func newCounter(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: metricsNamespace, Name: name, Help: help}, labels)
}

func newHistogram(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: metricsNamespace, Name: name, Help: help, Buckets: buckets}, labels)
}

// NewMetrics registers every collector on a private registry, next to the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		httpRequestsTotal: newCounter("http_requests_total",
			"HTTP requests served by the worker's probe and metrics endpoints.",
			"method", "path", "status"),
		httpRequestDuration: newHistogram("http_request_duration_seconds",
			"HTTP request duration in seconds.", prometheus.DefBuckets,
			"method", "path"),

		providerRequestsTotal: newCounter("provider_requests_total",
			"SMS gateway calls by endpoint and result (ok or error kind).",
			"endpoint", "result"),
		// 10ms up to ~20s covers the gateway's default 10s timeout.
		providerRequestDuration: newHistogram("provider_request_duration_seconds",
			"SMS gateway call duration in seconds.", prometheus.ExponentialBuckets(0.01, 2, 12),
			"endpoint"),

		dispatchesTotal: newCounter("dispatches_total",
			"Dispatch outcomes by status, with the failure reason.",
			"status", "reason"),
		deliveryStatesTotal: newCounter("delivery_states_total",
			"Delivery state changes observed by the tracker.",
			"state"),
		workerInflight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "worker_inflight",
			Help:      "Send requests currently being submitted to the gateway.",
		}, []string{"queue"}),
		redeliveriesTotal: newCounter("redeliveries_total",
			"Send requests scheduled for another gateway attempt.",
			"queue"),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.providerRequestsTotal,
		m.providerRequestDuration,
		m.dispatchesTotal,
		m.deliveryStatesTotal,
		m.workerInflight,
		m.redeliveriesTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

// ObserveRequest records one SMS gateway call. It satisfies plusserver.Recorder.
func (m *Metrics) ObserveRequest(endpoint string, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	seconds := elapsed.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.providerRequestsTotal.WithLabelValues(normalizeLabel(endpoint), normalizeLabel(result)).Inc()
	m.providerRequestDuration.WithLabelValues(normalizeLabel(endpoint)).Observe(seconds)
}

// IncDispatch counts a dispatch outcome. An empty reason is recorded as "none".
func (m *Metrics) IncDispatch(status string, reason string) {
	if m == nil {
		return
	}
	if strings.TrimSpace(reason) == "" {
		reason = "none"
	}
	m.dispatchesTotal.WithLabelValues(normalizeLabel(status), normalizeLabel(reason)).Inc()
}

func (m *Metrics) IncDeliveryState(state string) {
	if m == nil {
		return
	}
	m.deliveryStatesTotal.WithLabelValues(normalizeLabel(state)).Inc()
}

func (m *Metrics) IncWorkerInFlight(queue string) {
	if m == nil {
		return
	}
	m.workerInflight.WithLabelValues(normalizeLabel(queue)).Inc()
}

func (m *Metrics) DecWorkerInFlight(queue string) {
	if m == nil {
		return
	}
	m.workerInflight.WithLabelValues(normalizeLabel(queue)).Dec()
}

func (m *Metrics) IncRedelivery(queue string) {
	if m == nil {
		return
	}
	m.redeliveriesTotal.WithLabelValues(normalizeLabel(queue)).Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
