package sink

import (
	"strings"
	"testing"

	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGaugeSinkSet(t *testing.T) {
	s := NewGaugeSink()
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(s.Collector()))

	key := types.IdentityKey{Kind: types.RAM, Container: "a", Pod: "p", Namespace: "n", Node: "x"}
	s.Set(key, 0.4)
	s.Set(types.IdentityKey{Kind: types.CPU, Container: "a", Pod: "p", Namespace: "n", Node: "x"}, 1.5)

	assert.InDelta(t, 0.4, testutil.ToFloat64(s.gauge.WithLabelValues("ram", "a", "p", "n", "x")), 1e-12)

	expected := `
# HELP container_runtime_cost_total Total cost of a resource in a workload's lifetime
# TYPE container_runtime_cost_total gauge
container_runtime_cost_total{container="a",namespace="n",node="x",pod="p",resource="cpu"} 1.5
container_runtime_cost_total{container="a",namespace="n",node="x",pod="p",resource="ram"} 0.4
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "container_runtime_cost_total"))
}
