// Package metrics provides Prometheus metrics for the detection engine and
// update manager. All recorder methods are safe on a nil *Metrics, so
// callers never need to guard instrumentation sites.
package metrics

import (
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a dedicated registry so tests and embedded clients never
// collide on the global default.
type Metrics struct {
	registry *prometheus.Registry

	verdictsTotal       *prometheus.CounterVec
	findingsTotal       *prometheus.CounterVec
	degradedEvaluations *prometheus.CounterVec
	analyzeDuration     prometheus.Histogram
	cacheHitsTotal      prometheus.Counter
	cacheMissesTotal    prometheus.Counter

	updateAttemptsTotal *prometheus.CounterVec
	rollbacksTotal      *prometheus.CounterVec
	activeStoreInfo     *prometheus.GaugeVec
	retainedVersions    *prometheus.GaugeVec
}

// New creates a Metrics instance with all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		verdictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quorum_verdicts_total",
			Help: "Verdicts computed, by fused severity.",
		}, []string{"severity"}),
		findingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quorum_findings_total",
			Help: "Findings produced, by detector kind.",
		}, []string{"detector"}),
		degradedEvaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quorum_degraded_evaluations_total",
			Help: "Detector evaluations skipped or failed, by detector kind.",
		}, []string{"detector"}),
		analyzeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quorum_analyze_duration_seconds",
			Help:    "Wall time to compute one verdict.",
			Buckets: prometheus.ExponentialBuckets(50e-6, 4, 10),
		}),
		cacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quorum_verdict_cache_hits_total",
			Help: "Verdict cache hits.",
		}),
		cacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quorum_verdict_cache_misses_total",
			Help: "Verdict cache misses.",
		}),
		updateAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quorum_update_attempts_total",
			Help: "Update attempts, by terminal state and failure class.",
		}, []string{"state", "class"}),
		rollbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quorum_rollbacks_total",
			Help: "Store rollbacks, by store kind.",
		}, []string{"store_kind"}),
		activeStoreInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "quorum_active_store_info",
			Help: "Active store version; value is always 1 for the active series.",
		}, []string{"store_kind", "version"}),
		retainedVersions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "quorum_retained_versions",
			Help: "Superseded versions retained for rollback, by store kind.",
		}, []string{"store_kind"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.verdictsTotal,
		m.findingsTotal,
		m.degradedEvaluations,
		m.analyzeDuration,
		m.cacheHitsTotal,
		m.cacheMissesTotal,
		m.updateAttemptsTotal,
		m.rollbacksTotal,
		m.activeStoreInfo,
		m.retainedVersions,
	)
	return m
}

// ObserveVerdict records one computed verdict.
func (m *Metrics) ObserveVerdict(severity string, elapsed time.Duration, findingsByDetector map[string]int) {
	if m == nil {
		return
	}
	m.verdictsTotal.WithLabelValues(severity).Inc()
	m.analyzeDuration.Observe(elapsed.Seconds())
	for detector, n := range findingsByDetector {
		m.findingsTotal.WithLabelValues(detector).Add(float64(n))
	}
}

// RecordDegraded counts a detector that could not evaluate a record.
func (m *Metrics) RecordDegraded(detector string) {
	if m == nil {
		return
	}
	m.degradedEvaluations.WithLabelValues(detector).Inc()
}

// RecordCacheHit counts a verdict served from the cache.
func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.cacheHitsTotal.Inc()
}

// RecordCacheMiss counts a verdict computed fresh.
func (m *Metrics) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.cacheMissesTotal.Inc()
}

// RecordUpdateAttempt records a terminal update attempt state. class is
// the stable error code for failures, empty otherwise.
func (m *Metrics) RecordUpdateAttempt(state, class string) {
	if m == nil {
		return
	}
	m.updateAttemptsTotal.WithLabelValues(state, class).Inc()
}

// RecordRollback counts a completed rollback of one store kind.
func (m *Metrics) RecordRollback(storeKind string) {
	if m == nil {
		return
	}
	m.rollbacksTotal.WithLabelValues(storeKind).Inc()
}

// SetActiveStore marks version as the active series for a store kind and
// clears any previously active series of that kind.
func (m *Metrics) SetActiveStore(storeKind, version string) {
	if m == nil {
		return
	}
	m.activeStoreInfo.DeletePartialMatch(prometheus.Labels{"store_kind": storeKind})
	if version != "" {
		m.activeStoreInfo.WithLabelValues(storeKind, version).Set(1)
	}
}

// SetRetainedVersions reports the rollback window depth for a store kind.
func (m *Metrics) SetRetainedVersions(storeKind string, n int) {
	if m == nil {
		return
	}
	m.retainedVersions.WithLabelValues(storeKind).Set(float64(n))
}

// Handler returns the /metrics exposition handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gather exposes the underlying registry for tests.
func (m *Metrics) Gather() prometheus.Gatherer {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

// Serve exposes /metrics on addr. It returns the listening server; callers
// own shutdown. The listener is created synchronously so a bad address
// fails fast instead of inside the serving goroutine.
func (m *Metrics) Serve(addr string) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = srv.Serve(ln)
	}()
	return srv, nil
}
