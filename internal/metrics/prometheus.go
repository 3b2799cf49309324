package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestErrors   *prometheus.CounterVec

	// Action metrics
	ActionsTotal   *prometheus.CounterVec
	ActionDuration *prometheus.HistogramVec

	// Schedule engine metrics
	ScheduleRunsTotal *prometheus.CounterVec
	SchedulesInFlight prometheus.Gauge

	// Event log metrics
	EventsAppendedTotal *prometheus.CounterVec

	// Authorization metrics
	AuthzDecisionsTotal *prometheus.CounterVec

	// Cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	// Reconciliation metrics
	ReconcileDriftTotal *prometheus.CounterVec
	TenantsObserved     prometheus.Gauge
}

// NewMetrics creates and registers Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantd_requests_total",
				Help: "Total number of HTTP requests processed",
			},
			[]string{"method", "path", "status"},
		),

		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tenantd_request_duration_seconds",
				Help:    "Duration of HTTP request processing",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		RequestErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantd_request_errors_total",
				Help: "Total number of request errors",
			},
			[]string{"method", "path", "error_type"},
		),

		ActionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantd_actions_total",
				Help: "Total number of start/stop/scale actions executed",
			},
			[]string{"action", "cause", "status"},
		),

		ActionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tenantd_action_duration_seconds",
				Help:    "Duration of cluster actions",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"action"},
		),

		ScheduleRunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantd_schedule_runs_total",
				Help: "Total number of schedule evaluations",
			},
			[]string{"status"},
		),

		SchedulesInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "tenantd_schedules_in_flight",
				Help: "Number of schedule actions currently executing",
			},
		),

		EventsAppendedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantd_events_appended_total",
				Help: "Total number of state change events appended",
			},
			[]string{"cause"},
		),

		AuthzDecisionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantd_authz_decisions_total",
				Help: "Total number of authorization decisions",
			},
			[]string{"decision", "reason"},
		),

		CacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantd_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type"},
		),

		CacheMisses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantd_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type"},
		),

		ReconcileDriftTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantd_reconcile_drift_total",
				Help: "Total number of drift events detected by reconciliation",
			},
			[]string{"namespace"},
		),

		TenantsObserved: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "tenantd_tenants_observed",
				Help: "Number of tenant namespaces under management",
			},
		),
	}
}

// RecordRequest records an HTTP request metric
func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordError records a request error metric
func (m *Metrics) RecordError(method, path, errorType string) {
	m.RequestErrors.WithLabelValues(method, path, errorType).Inc()
}

// RecordAction records a cluster action execution
func (m *Metrics) RecordAction(action, cause, status string, duration float64) {
	m.ActionsTotal.WithLabelValues(action, cause, status).Inc()
	m.ActionDuration.WithLabelValues(action).Observe(duration)
}

// RecordScheduleRun records a schedule evaluation outcome
func (m *Metrics) RecordScheduleRun(status string) {
	m.ScheduleRunsTotal.WithLabelValues(status).Inc()
}

// RecordEventAppended records an event log append
func (m *Metrics) RecordEventAppended(cause string) {
	m.EventsAppendedTotal.WithLabelValues(cause).Inc()
}

// RecordAuthzDecision records an authorization outcome
func (m *Metrics) RecordAuthzDecision(allowed bool, reason string) {
	decision := "deny"
	if allowed {
		decision = "allow"
		reason = ""
	}
	m.AuthzDecisionsTotal.WithLabelValues(decision, reason).Inc()
}

// RecordCacheHit records a cache hit
func (m *Metrics) RecordCacheHit(cacheType string) {
	m.CacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records a cache miss
func (m *Metrics) RecordCacheMiss(cacheType string) {
	m.CacheMisses.WithLabelValues(cacheType).Inc()
}

// RecordDrift records a drift event for a namespace
func (m *Metrics) RecordDrift(namespace string) {
	m.ReconcileDriftTotal.WithLabelValues(namespace).Inc()
}

// UpdateTenantsObserved updates the managed tenant count
func (m *Metrics) UpdateTenantsObserved(count int) {
	m.TenantsObserved.Set(float64(count))
}
