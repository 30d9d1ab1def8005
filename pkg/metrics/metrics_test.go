package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/quorum-project/quorum/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.ObserveVerdict("high", time.Millisecond, map[string]int{"ioc": 1})
		m.RecordDegraded("anomaly")
		m.RecordUpdateAttempt("FAILED", "E_CHECKSUM_MISMATCH")
		m.RecordRollback("rules")
		m.SetActiveStore("rules", "r-2")
		m.SetRetainedVersions("rules", 3)
		m.RecordCacheHit()
		m.RecordCacheMiss()
	})
}

func TestObserveVerdict(t *testing.T) {
	m := metrics.New()
	m.ObserveVerdict("critical", 2*time.Millisecond, map[string]int{"ioc": 2, "ttp": 1})
	m.ObserveVerdict("none", time.Millisecond, nil)

	series, err := testutil.GatherAndCount(m.Gather(),
		"quorum_verdicts_total", "quorum_findings_total", "quorum_analyze_duration_seconds")
	require.NoError(t, err)
	// two severities + two detectors + one histogram
	assert.Equal(t, 5, series)
}

func TestActiveStoreInfo_SingleSeriesPerKind(t *testing.T) {
	m := metrics.New()
	m.SetActiveStore("indicators", "i-1")
	m.SetActiveStore("indicators", "i-2")

	got, err := testutil.GatherAndCount(m.Gather(), "quorum_active_store_info")
	require.NoError(t, err)
	// Only the i-2 series must remain
	assert.Equal(t, 1, got)
}

func TestServe_BadAddressFailsFast(t *testing.T) {
	m := metrics.New()
	_, err := m.Serve("256.256.256.256:0")
	require.Error(t, err)
}

func TestServe_ExposesMetrics(t *testing.T) {
	m := metrics.New()
	srv, err := m.Serve("127.0.0.1:0")
	require.NoError(t, err)
	defer srv.Close()
}
