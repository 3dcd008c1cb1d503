package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ProcessingMetrics tracks order processing runs and pool movement.
type ProcessingMetrics struct {
	runs            *prometheus.CounterVec
	runDuration     prometheus.Histogram
	claimed         prometheus.Counter
	released        prometheus.Counter
	diversityRetry  prometheus.Counter
	fulfillmentMerg *prometheus.CounterVec
}

// NewProcessingMetrics registers the processing metrics on reg. A nil
// registerer yields a recorder that drops everything.
func NewProcessingMetrics(reg prometheus.Registerer) *ProcessingMetrics {
	if reg == nil {
		return &ProcessingMetrics{}
	}
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "processing_runs_total",
		Help: "Order processing runs by outcome.",
	}, []string{"outcome"})
	runDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "processing_run_duration_seconds",
		Help:    "Duration of order processing runs in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	claimed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "manifest_items_claimed_total",
		Help: "Manifest items claimed for orders.",
	})
	released := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "manifest_items_released_total",
		Help: "Manifest items returned to the pool.",
	})
	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "diversity_retries_total",
		Help: "Claims released and redrawn to satisfy variant diversity.",
	})
	merges := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_merge_results_total",
		Help: "Fulfillment consolidation results.",
	}, []string{"result"})
	reg.MustRegister(runs, runDuration, claimed, released, retries, merges)
	return &ProcessingMetrics{
		runs:            runs,
		runDuration:     runDuration,
		claimed:         claimed,
		released:        released,
		diversityRetry:  retries,
		fulfillmentMerg: merges,
	}
}

// ObserveRun records the outcome and duration of one run.
func (m *ProcessingMetrics) ObserveRun(outcome string, duration time.Duration) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(normalizeLabel(outcome)).Inc()
	m.runDuration.Observe(duration.Seconds())
}

func (m *ProcessingMetrics) AddClaimed(n int) {
	if m == nil || m.claimed == nil || n <= 0 {
		return
	}
	m.claimed.Add(float64(n))
}

func (m *ProcessingMetrics) AddReleased(n int) {
	if m == nil || m.released == nil || n <= 0 {
		return
	}
	m.released.Add(float64(n))
}

func (m *ProcessingMetrics) IncDiversityRetry() {
	if m == nil || m.diversityRetry == nil {
		return
	}
	m.diversityRetry.Inc()
}

func (m *ProcessingMetrics) IncFulfillmentResult(result string) {
	if m == nil || m.fulfillmentMerg == nil {
		return
	}
	m.fulfillmentMerg.WithLabelValues(normalizeLabel(result)).Inc()
}
