package eventlog

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	prometheus "github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this
	// package.
	MetricsSubsystem = "eventlog"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Number of events indexed, labeled by event type.
	EventsIndexed metrics.Counter
	// Number of sink failures while indexing, labeled by sink type.
	IndexErrors metrics.Counter
	// Time spent indexing one event across all sinks.
	IndexSeconds metrics.Histogram
}

// PrometheusMetrics returns Metrics built using Prometheus client library.
// Optionally, labels can be provided along with their values ("foo",
// "fooValue").
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return &Metrics{
		EventsIndexed: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "events_indexed",
			Help:      "Number of events indexed.",
		}, append(labels, "event")).With(labelsAndValues...),
		IndexErrors: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "index_errors",
			Help:      "Number of sink failures while indexing.",
		}, append(labels, "sink")).With(labelsAndValues...),
		IndexSeconds: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "index_seconds",
			Help:      "Time spent indexing one event across all sinks.",
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		EventsIndexed: discard.NewCounter(),
		IndexErrors:   discard.NewCounter(),
		IndexSeconds:  discard.NewHistogram(),
	}
}
