package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Permission engine metrics
	PermissionChecksTotal   *prometheus.CounterVec
	PermissionCheckDuration prometheus.Histogram

	// Workflow metrics
	RouteStartsTotal      *prometheus.CounterVec
	RouteTransitionsTotal *prometheus.CounterVec
	ActionExecutionsTotal *prometheus.CounterVec

	// Audit metrics
	AuditEntriesTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docket_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docket_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		PermissionChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docket_permission_checks_total",
				Help: "Total number of ACL permission checks",
			},
			[]string{"permission", "allowed"},
		),
		PermissionCheckDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "docket_permission_check_duration_seconds",
				Help:    "ACL permission check duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		RouteStartsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docket_route_starts_total",
				Help: "Total number of routes started on documents",
			},
			[]string{"status"},
		),
		RouteTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docket_route_transitions_total",
				Help: "Total number of route step transitions",
			},
			[]string{"transition", "status"},
		),
		ActionExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docket_action_executions_total",
				Help: "Total number of workflow actions executed",
			},
			[]string{"type", "status"},
		),
		AuditEntriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docket_audit_entries_total",
				Help: "Total number of audit log entries recorded",
			},
			[]string{"entity_class", "change_type"},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "docket_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "docket_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.PermissionChecksTotal,
		m.PermissionCheckDuration,
		m.RouteStartsTotal,
		m.RouteTransitionsTotal,
		m.ActionExecutionsTotal,
		m.AuditEntriesTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// Handler returns an HTTP handler exposing the metrics registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObservePermissionCheck records the outcome of one permission check.
func (m *Metrics) ObservePermissionCheck(permission string, allowed bool, duration time.Duration) {
	m.PermissionChecksTotal.WithLabelValues(permission, strconv.FormatBool(allowed)).Inc()
	m.PermissionCheckDuration.Observe(duration.Seconds())
}

// HTTPMiddleware instruments HTTP handlers with request counters and latency.
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rw.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
