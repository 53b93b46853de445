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

// Run result labels for digest_runs_total.
const (
	RunResultCompleted = "completed"
	RunResultSkipped   = "skipped"
	RunResultFailed    = "failed"
)

// Metrics stores Prometheus collectors used by the API and digest flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	digestRunsTotal     *prometheus.CounterVec
	emailsSentTotal     *prometheus.CounterVec
	emailsFailedTotal   *prometheus.CounterVec
	emailSendDuration   *prometheus.HistogramVec
	lastRunRecipients   *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "digest_engine",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "digest_engine",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		digestRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "digest_engine",
				Name:      "digest_runs_total",
				Help:      "Total number of digest runs grouped by kind and result.",
			},
			[]string{"kind", "result"},
		),
		emailsSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "digest_engine",
				Name:      "emails_sent_total",
				Help:      "Total number of digest emails delivered successfully.",
			},
			[]string{"kind"},
		),
		emailsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "digest_engine",
				Name:      "emails_failed_total",
				Help:      "Total number of digest email sends that failed.",
			},
			[]string{"kind"},
		),
		emailSendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "digest_engine",
				Name:      "email_send_duration_seconds",
				Help:      "Mail provider send duration in seconds grouped by digest kind.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"kind"},
		),
		lastRunRecipients: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "digest_engine",
				Name:      "last_run_recipients",
				Help:      "Recipient count attempted by the most recent run per digest kind.",
			},
			[]string{"kind"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.digestRunsTotal,
		m.emailsSentTotal,
		m.emailsFailedTotal,
		m.emailSendDuration,
		m.lastRunRecipients,
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

func (m *Metrics) IncDigestRun(kind string, result string) {
	if m == nil {
		return
	}
	resultLabel := strings.TrimSpace(strings.ToLower(result))
	if resultLabel == "" {
		resultLabel = "unknown"
	}
	m.digestRunsTotal.WithLabelValues(normalizeKind(kind), resultLabel).Inc()
}

func (m *Metrics) IncEmailSent(kind string) {
	if m == nil {
		return
	}
	m.emailsSentTotal.WithLabelValues(normalizeKind(kind)).Inc()
}

func (m *Metrics) IncEmailFailed(kind string) {
	if m == nil {
		return
	}
	m.emailsFailedTotal.WithLabelValues(normalizeKind(kind)).Inc()
}

func (m *Metrics) ObserveEmailSendDuration(kind string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.emailSendDuration.WithLabelValues(normalizeKind(kind)).Observe(seconds)
}

func (m *Metrics) SetLastRunRecipients(kind string, count int) {
	if m == nil {
		return
	}
	m.lastRunRecipients.WithLabelValues(normalizeKind(kind)).Set(float64(count))
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

func normalizeKind(kind string) string {
	normalized := strings.ToLower(strings.TrimSpace(kind))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
