package metrics

import (
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTimer(t *testing.T) {
	timer := NewTimer()
	require.NotNil(t, timer)
	assert.False(t, timer.start.IsZero())
}

func TestTimerDuration(t *testing.T) {
	timer := NewTimer()
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, timer.Duration(), 5*time.Millisecond)
}

func TestTimerZeroDuration(t *testing.T) {
	timer := NewTimer()
	assert.GreaterOrEqual(t, timer.Duration(), time.Duration(0))
}

func TestTimerObserveDuration(t *testing.T) {
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "test_timer_observe_duration",
	})

	timer := NewTimer()
	time.Sleep(5 * time.Millisecond)
	timer.ObserveDuration(histogram)

	metric := &dto.Metric{}
	require.NoError(t, histogram.(prometheus.Metric).Write(metric))
	assert.Equal(t, uint64(1), metric.GetHistogram().GetSampleCount())
}

func TestTimerObserveDurationVec(t *testing.T) {
	histogramVec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "test_timer_observe_duration_vec",
	}, []string{"package"})

	timer := NewTimer()
	time.Sleep(5 * time.Millisecond)
	timer.ObserveDurationVec(histogramVec, "demo")

	metric := &dto.Metric{}
	require.NoError(t, histogramVec.WithLabelValues("demo").(prometheus.Metric).Write(metric))
	assert.Equal(t, uint64(1), metric.GetHistogram().GetSampleCount())
}

func TestTimerMultipleCalls(t *testing.T) {
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "test_timer_multiple_calls",
	})

	timer := NewTimer()
	timer.ObserveDuration(histogram)
	timer.ObserveDuration(histogram)

	metric := &dto.Metric{}
	require.NoError(t, histogram.(prometheus.Metric).Write(metric))
	assert.Equal(t, uint64(2), metric.GetHistogram().GetSampleCount())
}

func TestMultipleTimers(t *testing.T) {
	first := NewTimer()
	time.Sleep(2 * time.Millisecond)
	second := NewTimer()

	assert.Greater(t, first.Duration(), second.Duration())
}

func TestTimerConsistency(t *testing.T) {
	timer := NewTimer()
	time.Sleep(3 * time.Millisecond)
	d1 := timer.Duration()
	time.Sleep(3 * time.Millisecond)
	d2 := timer.Duration()

	assert.Greater(t, d2, d1)
}
