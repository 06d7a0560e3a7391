package sink

import (
	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/common"
	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/types"
	"github.com/prometheus/client_golang/prometheus"
)

// Sink receives the cost to date of one container resource
type Sink interface {
	Set(key types.IdentityKey, cost float64)
}

// GaugeSink exposes costs as the container_runtime_cost_total gauge
type GaugeSink struct {
	gauge *prometheus.GaugeVec
}

var _ Sink = &GaugeSink{}

// NewGaugeSink creates an unregistered gauge sink; register Collector() with the serving registry
func NewGaugeSink() *GaugeSink {
	return &GaugeSink{
		gauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: common.CostMetricName,
				Help: common.CostMetricHelp,
			},
			[]string{"resource", "container", "pod", "namespace", "node"},
		),
	}
}

// Collector returns the underlying gauge vector
func (s *GaugeSink) Collector() prometheus.Collector {
	return s.gauge
}

// Set updates the gauge for one identity
func (s *GaugeSink) Set(key types.IdentityKey, cost float64) {
	s.gauge.WithLabelValues(key.GaugeLabels()...).Set(cost)
}
