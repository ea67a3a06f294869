// Package observability exports extraction events as prometheus metrics
// and bus messages.
package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/FACorreiaa/bankstatement2csv/internal/domain/extraction"
)

const namespace = "statement"

// Metrics is an extraction.Observer backed by prometheus collectors.
type Metrics struct {
	events          *prometheus.CounterVec
	errors          *prometheus.CounterVec
	turnDuration    *prometheus.HistogramVec
	chunkDuration   *prometheus.HistogramVec
	duplicates      *prometheus.CounterVec
	recordsAccepted *prometheus.CounterVec
	stops           *prometheus.CounterVec
	fallbacks       prometheus.Counter
	jobs            *prometheus.CounterVec
}

var _ extraction.Observer = (*Metrics)(nil)

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "events_total",
			Help:      "Extraction events by kind.",
		}, []string{"kind"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "errors_total",
			Help:      "Extraction events carrying an error, by kind.",
		}, []string{"kind"}),
		turnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "turn_duration_seconds",
			Help:      "Model turn latency.",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 80, 160, 320},
		}, []string{"model"}),
		chunkDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "chunk_duration_seconds",
			Help:      "Wall time to extract one chunk.",
			Buckets:   prometheus.ExponentialBuckets(5, 2, 9),
		}, []string{"model"}),
		duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "duplicates_dropped_total",
			Help:      "Records dropped as repeats, by scope (chunk or document).",
		}, []string{"scope"}),
		recordsAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "records_accepted_total",
			Help:      "Records accepted per completed chunk.",
		}, []string{"model"}),
		stops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "chunk_stops_total",
			Help:      "Completed chunks by stop reason.",
		}, []string{"reason"}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "fallbacks_total",
			Help:      "Chunks retried on the fallback model.",
		}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Finished conversion jobs by status.",
		}, []string{"status"}),
	}

	for _, c := range []prometheus.Collector{
		m.events, m.errors, m.turnDuration, m.chunkDuration, m.duplicates,
		m.recordsAccepted, m.stops, m.fallbacks, m.jobs,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Observe updates the collectors for one event.
func (m *Metrics) Observe(_ context.Context, e extraction.Event) {
	kind := string(e.Kind)
	m.events.WithLabelValues(kind).Inc()
	if e.Err != nil {
		m.errors.WithLabelValues(kind).Inc()
	}

	switch e.Kind {
	case extraction.EventTurnCompleted:
		m.turnDuration.WithLabelValues(e.Model).Observe(e.Duration.Seconds())
	case extraction.EventDuplicatesDropped:
		m.duplicates.WithLabelValues(e.Reason).Add(float64(e.Count))
	case extraction.EventFallbackTriggered:
		m.fallbacks.Inc()
	case extraction.EventChunkCompleted:
		m.chunkDuration.WithLabelValues(e.Model).Observe(e.Duration.Seconds())
		m.recordsAccepted.WithLabelValues(e.Model).Add(float64(e.Accepted))
		m.stops.WithLabelValues(e.Reason).Inc()
	}
}

// JobsFinished records the outcome counts of a batch.
func (m *Metrics) JobsFinished(succeeded, failed int) {
	m.jobs.WithLabelValues("ready").Add(float64(succeeded))
	m.jobs.WithLabelValues("error").Add(float64(failed))
}
