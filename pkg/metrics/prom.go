package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gokaycavdar/go-nightguard/pkg/models"
)

const namespace = "nightguard"

// Recorder exports classification, normalization and collection figures
// to Prometheus. It satisfies engine.Recorder and baseline.FailureCounter.
type Recorder struct {
	runs             prometheus.Counter
	devices          *prometheus.CounterVec
	lastRunDevices   *prometheus.GaugeVec
	extendedSessions prometheus.Counter
	duplicates       prometheus.Counter
	dropped          prometheus.Counter
	baselineFailures *prometheus.CounterVec
	runDuration      prometheus.Histogram
}

// NewRecorder creates the collectors and registers them on reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classification_runs_total",
			Help:      "Total classification runs completed.",
		}),
		devices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classified_devices_total",
			Help:      "Device profiles emitted, by bucket.",
		}, []string{"bucket"}),
		lastRunDevices: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_devices",
			Help:      "Device profiles per bucket in the most recent run.",
		}, []string{"bucket"}),
		extendedSessions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extended_sessions_total",
			Help:      "Extended sessions reported.",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_events_total",
			Help:      "Repeated event deliveries collapsed by the normalizer.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_events_total",
			Help:      "Events dropped for an unsupported type.",
		}),
		baselineFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "baseline_window_failures_total",
			Help:      "Baseline windows that could not be fetched, by night half.",
		}, []string{"half"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classification_duration_seconds",
			Help:      "Time spent classifying one run.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}

	reg.MustRegister(
		r.runs,
		r.devices,
		r.lastRunDevices,
		r.extendedSessions,
		r.duplicates,
		r.dropped,
		r.baselineFailures,
		r.runDuration,
	)
	return r
}

// ObserveAnalysis records the outcome of one run.
func (r *Recorder) ObserveAnalysis(a *models.Analysis, elapsed time.Duration) {
	r.runs.Inc()
	for _, b := range a.Buckets() {
		r.devices.WithLabelValues(b.Name).Add(float64(len(b.Devices)))
		r.lastRunDevices.WithLabelValues(b.Name).Set(float64(len(b.Devices)))
	}
	r.extendedSessions.Add(float64(len(a.ExtendedSessions)))
	r.runDuration.Observe(elapsed.Seconds())
}

// ObserveNormalization records the normalizer counters of one run.
func (r *Recorder) ObserveNormalization(duplicates, dropped int) {
	r.duplicates.Add(float64(duplicates))
	r.dropped.Add(float64(dropped))
}

// IncBaselineFailure counts one failed baseline window.
func (r *Recorder) IncBaselineFailure(half string) {
	r.baselineFailures.WithLabelValues(half).Inc()
}
