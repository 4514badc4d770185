package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestCronJobMetricsRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	m.now = func() time.Time { return time.Unix(1_800_000_000, 0) }

	m.Observe("auto-release", 250*time.Millisecond, nil)
	m.Observe("auto-release", 10*time.Millisecond, errors.New("db down"))
	m.Observe("", time.Millisecond, nil)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	success, err := fetchCounterValue(mfs, "lootbay_cron_runs_total", map[string]string{"job": "auto-release", "outcome": "success"})
	require.NoError(t, err)
	require.Equal(t, 1.0, success)

	failure, err := fetchCounterValue(mfs, "lootbay_cron_runs_total", map[string]string{"job": "auto-release", "outcome": "failure"})
	require.NoError(t, err)
	require.Equal(t, 1.0, failure)

	unknown, err := fetchCounterValue(mfs, "lootbay_cron_runs_total", map[string]string{"job": "unknown", "outcome": "success"})
	require.NoError(t, err)
	require.Equal(t, 1.0, unknown)

	sum, err := fetchHistogramSum(mfs, "lootbay_cron_job_duration_seconds", map[string]string{"job": "auto-release"})
	require.NoError(t, err)
	require.InDelta(t, 0.26, sum, 0.001)

	stamp, err := fetchGaugeValue(mfs, "lootbay_cron_last_success_timestamp_seconds", map[string]string{"job": "auto-release"})
	require.NoError(t, err)
	require.Equal(t, 1_800_000_000.0, stamp)
}

func TestCronJobMetricsNilSafe(t *testing.T) {
	var m *CronJobMetrics
	m.Observe("x", time.Second, nil)
	NewCronJobMetrics(nil).Observe("x", time.Second, errors.New("boom"))
}

func fetchCounterValue(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	metric, err := findMetric(mfs, name, labels)
	if err != nil {
		return 0, err
	}
	return metric.GetCounter().GetValue(), nil
}

func fetchGaugeValue(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	metric, err := findMetric(mfs, name, labels)
	if err != nil {
		return 0, err
	}
	return metric.GetGauge().GetValue(), nil
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	metric, err := findMetric(mfs, name, labels)
	if err != nil {
		return 0, err
	}
	return metric.GetHistogram().GetSampleSum(), nil
}

func findMetric(mfs []*dto.MetricFamily, name string, labels map[string]string) (*dto.Metric, error) {
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if matchesLabels(metric.GetLabel(), labels) {
				return metric, nil
			}
		}
		return nil, fmt.Errorf("metric %q missing labels %v", name, labels)
	}
	return nil, fmt.Errorf("metric %q not found", name)
}

func matchesLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, pair := range pairs {
		if v, ok := want[pair.GetName()]; ok && v == pair.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
