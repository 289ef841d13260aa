package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PackagesTotal is a snapshot of configured packages grouped by their
	// last recorded status (Reconciled, Error, Success, PartialSuccess,
	// Failed, or Unknown when no entry has been recorded yet).
	PackagesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "autoupdater_packages_total",
			Help: "Total number of configured packages by last known status",
		},
		[]string{"status"},
	)

	// UpdatesTotal counts completed Engine.Update runs by package and
	// outcome (Success, PartialSuccess, Failed).
	UpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoupdater_updates_total",
			Help: "Total number of completed updates by package and outcome",
		},
		[]string{"package", "outcome"},
	)

	// UpdateDuration observes how long a full Engine.Update run took.
	UpdateDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "autoupdater_update_duration_seconds",
			Help:    "Duration of a completed update, in seconds, by package",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"package"},
	)

	// RecoveryTotal counts how many times a failed update triggered a
	// backup restore, by package.
	RecoveryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoupdater_recovery_total",
			Help: "Total number of times recovery from backup was performed, by package",
		},
		[]string{"package"},
	)
)

func init() {
	prometheus.MustRegister(PackagesTotal)
	prometheus.MustRegister(UpdatesTotal)
	prometheus.MustRegister(UpdateDuration)
	prometheus.MustRegister(RecoveryTotal)
}

// Handler returns the Prometheus exposition handler mounted at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures elapsed wall time for observing into a histogram once an
// operation completes.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed duration to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed duration to a labeled histogram vec.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the time elapsed since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
