package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	accessDecisions   *prometheus.CounterVec
	policyEvaluations *prometheus.CounterVec
	auditLogsWritten  *prometheus.CounterVec
	webhookFailures   *prometheus.CounterVec
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gatehouse_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gatehouse_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gatehouse_access_decisions_total",
		Help: "Jumlah keputusan akses berdasarkan tenant, resource, action dan hasil.",
	}, []string{"tenant", "resource", "action", "allowed"})
	evaluations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gatehouse_policy_evaluations_total",
		Help: "Jumlah evaluasi policy berdasarkan tenant dan jalur (sync/async).",
	}, []string{"tenant", "path"})
	auditWritten := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gatehouse_audit_logs_written_total",
		Help: "Jumlah audit log yang berhasil ditulis per tenant.",
	}, []string{"tenant"})
	webhookFail := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gatehouse_webhook_failures_total",
		Help: "Jumlah kegagalan pengiriman webhook per tenant dan event.",
	}, []string{"tenant", "event_type"})
	registry.MustRegister(requests, duration, decisions, evaluations, auditWritten, webhookFail)
	return &Metrics{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:     requests,
		requestDuration:   duration,
		accessDecisions:   decisions,
		policyEvaluations: evaluations,
		auditLogsWritten:  auditWritten,
		webhookFailures:   webhookFail,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// IncAccessDecision mencatat satu keputusan akses.
func (m *Metrics) IncAccessDecision(tenantID, resource, action string, allowed bool) {
	if m == nil {
		return
	}
	m.accessDecisions.WithLabelValues(tenantID, resource, action, strconv.FormatBool(allowed)).Inc()
}

// IncPolicyEvaluation mencatat satu evaluasi policy pada jalur tertentu.
func (m *Metrics) IncPolicyEvaluation(tenantID, path string) {
	if m == nil {
		return
	}
	m.policyEvaluations.WithLabelValues(tenantID, path).Inc()
}

// IncAuditLogWritten mencatat audit log yang berhasil ditulis.
func (m *Metrics) IncAuditLogWritten(tenantID string) {
	if m == nil {
		return
	}
	m.auditLogsWritten.WithLabelValues(tenantID).Inc()
}

// IncWebhookFailure mencatat kegagalan pengiriman webhook.
func (m *Metrics) IncWebhookFailure(tenantID, eventType string) {
	if m == nil {
		return
	}
	m.webhookFailures.WithLabelValues(tenantID, eventType).Inc()
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
