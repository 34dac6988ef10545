package bridge

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	prometheus "github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this
	// package.
	MetricsSubsystem = "bridge"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Height of the current chain tip.
	TipHeight metrics.Gauge
	// Number of submissions awaiting finalization.
	PendingSubmissions metrics.Gauge
	// Total bond held in escrow, in host bank units.
	EscrowedBond metrics.Gauge
	// Host chain height last reported to the bridge.
	HostHeight metrics.Gauge

	// Number of accepted submissions.
	Submissions metrics.Counter
	// Number of rejected state-changing calls, labeled by operation and
	// rejection reason.
	RejectedOps metrics.Counter
	// Number of proven frauds.
	FraudsProven metrics.Counter
	// Number of finalized blocks.
	FinalizedBlocks metrics.Counter
	// Number of pruned orphan blocks.
	PrunedBlocks metrics.Counter
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
		TipHeight: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "tip_height",
			Help:      "Height of the current chain tip.",
		}, labels).With(labelsAndValues...),
		PendingSubmissions: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "pending_submissions",
			Help:      "Number of submissions awaiting finalization.",
		}, labels).With(labelsAndValues...),
		EscrowedBond: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "escrowed_bond",
			Help:      "Total bond held in escrow, in host bank units.",
		}, labels).With(labelsAndValues...),
		HostHeight: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "host_height",
			Help:      "Host chain height last reported to the bridge.",
		}, labels).With(labelsAndValues...),
		Submissions: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "submissions",
			Help:      "Number of accepted submissions.",
		}, labels).With(labelsAndValues...),
		RejectedOps: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "rejected_ops",
			Help:      "Number of rejected state-changing calls.",
		}, append(labels, "op", "reason")).With(labelsAndValues...),
		FraudsProven: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "frauds_proven",
			Help:      "Number of proven frauds.",
		}, labels).With(labelsAndValues...),
		FinalizedBlocks: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "finalized_blocks",
			Help:      "Number of finalized blocks.",
		}, labels).With(labelsAndValues...),
		PrunedBlocks: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "pruned_blocks",
			Help:      "Number of pruned orphan blocks.",
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		TipHeight:          discard.NewGauge(),
		PendingSubmissions: discard.NewGauge(),
		EscrowedBond:       discard.NewGauge(),
		HostHeight:         discard.NewGauge(),
		Submissions:        discard.NewCounter(),
		RejectedOps:        discard.NewCounter(),
		FraudsProven:       discard.NewCounter(),
		FinalizedBlocks:    discard.NewCounter(),
		PrunedBlocks:       discard.NewCounter(),
	}
}
