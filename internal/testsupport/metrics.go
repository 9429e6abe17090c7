package testsupport

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// GetMetricValue reads a counter, gauge or histogram sample count from the
// default registry. Missing series read as 0.
func GetMetricValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err, "gather metrics")

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if !hasLabels(m, labels) {
				continue
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return 0
}

func hasLabels(m *dto.Metric, want map[string]string) bool {
	got := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

// AssertMetricDelta asserts that name grew by exactly delta while fn ran.
func AssertMetricDelta(t *testing.T, name string, labels map[string]string, delta float64, fn func()) {
	t.Helper()

	before := GetMetricValue(t, name, labels)
	fn()
	after := GetMetricValue(t, name, labels)

	assert.Equal(t, delta, after-before, "metric %s%v delta mismatch", name, labels)
}

// AssertMetricDeltaAsync is AssertMetricDelta for work that completes in the
// background, such as bus consumers.
func AssertMetricDeltaAsync(t *testing.T, name string, labels map[string]string, delta float64, fn func()) {
	t.Helper()

	before := GetMetricValue(t, name, labels)
	fn()

	require.Eventually(t, func() bool {
		return GetMetricValue(t, name, labels) == before+delta
	}, 2*time.Second, 20*time.Millisecond, "metric %s%v never grew by %.0f", name, labels, delta)
}

// AssertHistogramRecorded asserts that a histogram holds at least one sample.
func AssertHistogramRecorded(t *testing.T, name string, labels map[string]string) {
	t.Helper()

	assert.Greater(t, GetMetricValue(t, name, labels), 0.0, "histogram %s%v has no samples", name, labels)
}
