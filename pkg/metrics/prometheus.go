package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain/repository.Metrics using Prometheus.
type Recorder struct {
	observationsTotal *prometheus.CounterVec
	rejectedTotal     *prometheus.CounterVec
	unscorableTotal   *prometheus.CounterVec
	roundsClosed      prometheus.Counter
	roundsScored      prometheus.Counter
	errorsTotal       *prometheus.CounterVec
	latency           *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		observationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finorax_observations_total",
				Help: "Total observations accepted into the store",
			},
			[]string{"asset"},
		),
		rejectedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finorax_observations_rejected_total",
				Help: "Observations rejected before storage",
			},
			[]string{"reason"},
		),
		unscorableTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finorax_unscorable_observations_total",
				Help: "Observations excluded from scoring due to missing price data",
			},
			[]string{"asset"},
		),
		roundsClosed: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "finorax_rounds_closed_total",
				Help: "Rounds transitioned OPEN to CLOSED",
			},
		),
		roundsScored: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "finorax_rounds_scored_total",
				Help: "Rounds transitioned CLOSED to SCORED",
			},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finorax_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finorax_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordObservation(assetID string) {
	r.observationsTotal.WithLabelValues(assetID).Inc()
}

func (r *Recorder) RecordRejected(reason string) {
	r.rejectedTotal.WithLabelValues(reason).Inc()
}

func (r *Recorder) RecordUnscorable(assetID string) {
	r.unscorableTotal.WithLabelValues(assetID).Inc()
}

func (r *Recorder) RecordRoundClosed() { r.roundsClosed.Inc() }

func (r *Recorder) RecordRoundScored() { r.roundsScored.Inc() }

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Noop is a no-op recorder for tests and disabled-metrics deployments.
type Noop struct{}

func (Noop) RecordObservation(string)      {}
func (Noop) RecordRejected(string)         {}
func (Noop) RecordUnscorable(string)       {}
func (Noop) RecordRoundClosed()            {}
func (Noop) RecordRoundScored()            {}
func (Noop) RecordError(string)            {}
func (Noop) RecordLatency(string, float64) {}
