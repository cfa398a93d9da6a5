package jobmetrics

import (
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	require.NoError(t, metrics.Track("otp:deliver").End(nil))
	failure := errors.New("gateway down")
	assert.ErrorIs(t, metrics.Track("otp:deliver").End(failure), failure)

	expected := `
# HELP learnexa_jobs_failures_total Failed job executions by task type.
# TYPE learnexa_jobs_failures_total counter
learnexa_jobs_failures_total{job="otp:deliver"} 1
`
	require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "learnexa_jobs_failures_total"))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues("otp:deliver", "success")))
}

func TestNilTrackerPassesErrorThrough(t *testing.T) {
	var metrics *Metrics
	failure := errors.New("boom")
	assert.ErrorIs(t, metrics.Track("profile:provision").End(failure), failure)
}
