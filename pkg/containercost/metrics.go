package containercost

import (
	"k8s.io/component-base/metrics"
	"k8s.io/component-base/metrics/legacyregistry"
)

const (
	// Subsystem name used for exporter self-metrics
	exporterSubsystem = "container_cost_exporter"
)

var (
	// CycleDuration measures how long one resource cycle takes
	CycleDuration = metrics.NewHistogramVec(
		&metrics.HistogramOpts{
			Subsystem:      exporterSubsystem,
			Name:           "cycle_duration_seconds",
			Help:           "Duration of one polling cycle for a resource kind",
			Buckets:        metrics.ExponentialBuckets(0.01, 2, 12),
			StabilityLevel: metrics.ALPHA,
		},
		[]string{"resource"},
	)

	// CycleResults counts cycles by outcome
	CycleResults = metrics.NewCounterVec(
		&metrics.CounterOpts{
			Subsystem:      exporterSubsystem,
			Name:           "cycles_total",
			Help:           "Number of polling cycles by resource and result",
			StabilityLevel: metrics.ALPHA,
		},
		[]string{"resource", "result"}, // "success", "error", "aborted"
	)

	// TrackedRecords reports how many container resources are being accrued
	TrackedRecords = metrics.NewGaugeVec(
		&metrics.GaugeOpts{
			Subsystem:      exporterSubsystem,
			Name:           "tracked_records",
			Help:           "Number of container resources with cost state",
			StabilityLevel: metrics.ALPHA,
		},
		[]string{"resource"},
	)

	// ReportedRecords reports how many costs the last cycle pushed to the gauge
	ReportedRecords = metrics.NewGaugeVec(
		&metrics.GaugeOpts{
			Subsystem:      exporterSubsystem,
			Name:           "reported_records",
			Help:           "Number of container costs updated by the last cycle",
			StabilityLevel: metrics.ALPHA,
		},
		[]string{"resource"},
	)

	// DroppedRows counts usage and uptime rows that were not billed
	DroppedRows = metrics.NewCounterVec(
		&metrics.CounterOpts{
			Subsystem:      exporterSubsystem,
			Name:           "dropped_rows_total",
			Help:           "Number of rows not billed in a cycle by reason",
			StabilityLevel: metrics.ALPHA,
		},
		[]string{"resource", "reason"}, // "no_uptime", "no_node_cost", "invalid_start_time", "non_finite"
	)
)

func init() {
	legacyregistry.MustRegister(CycleDuration)
	legacyregistry.MustRegister(CycleResults)
	legacyregistry.MustRegister(TrackedRecords)
	legacyregistry.MustRegister(ReportedRecords)
	legacyregistry.MustRegister(DroppedRows)
}
