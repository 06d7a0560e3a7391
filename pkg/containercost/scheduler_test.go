package containercost

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/aggregator"
	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/clock"
	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/config"
	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/metrics"
	metricsmock "github.com/elevated-systems/container-cost-exporter/pkg/containercost/metrics/mock"
	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/registry"
	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/sink"
	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPollTime = 10_000

func row(container, node string, value float64) metrics.Row {
	return metrics.Row{
		Labels: map[string]string{
			types.LabelContainer: container,
			types.LabelPod:       container + "-pod",
			types.LabelNamespace: "default",
			types.LabelNode:      node,
		},
		Value: value,
	}
}

func price(node string, hourly float64) metrics.Row {
	return metrics.Row{Labels: map[string]string{"exported_instance": node}, Value: hourly}
}

// populatedSource serves one container per resource kind on node x
func populatedSource() (*metricsmock.MockQuerySource, map[types.ResourceKind]config.QuerySet) {
	queries := config.DefaultQueries()
	source := metricsmock.NewMockQuerySource()
	for _, kind := range types.AllResourceKinds {
		qs := queries[kind]
		source.Set(qs.Usage, row("app", "x", 1))
		source.Set(qs.Uptime, row("app", "x", testPollTime-3600))
		source.Set(qs.NodePrice, price("x", 1))
	}
	return source, queries
}

func newTestScheduler(source metrics.QuerySource, queries map[types.ResourceKind]config.QuerySet, interval time.Duration) (*Scheduler, *sink.GaugeSink, *registry.Registry) {
	reg := registry.New()
	gauge := sink.NewGaugeSink()
	agg := aggregator.New(source, reg, gauge, queries,
		aggregator.WithClock(clock.NewMockClock(time.Unix(testPollTime, 0))))
	return NewScheduler(agg, reg, interval), gauge, reg
}

func TestTickRunsEveryResourceKind(t *testing.T) {
	source, queries := populatedSource()
	s, gauge, reg := newTestScheduler(source, queries, time.Minute)

	assert.False(t, s.Ready())
	require.NoError(t, s.Tick(context.Background()))
	assert.True(t, s.Ready())
	assert.Equal(t, int64(1), s.Ticks())

	assert.Equal(t, 3, reg.Size())
	for _, kind := range types.AllResourceKinds {
		assert.Equal(t, 1, reg.CountByKind(kind), "resource %s", kind)
	}
	assert.Equal(t, 3, testutil.CollectAndCount(gauge.Collector()))

	// gpu has no request query
	assert.NotContains(t, source.Queries(), "")
}

func TestTickReturnsFirstError(t *testing.T) {
	source, queries := populatedSource()
	source.Fail(queries[types.RAM].NodePrice, "backend unavailable")

	s, _, _ := newTestScheduler(source, queries, time.Minute)
	err := s.Tick(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ram cycle")
	assert.Contains(t, err.Error(), "backend unavailable")
	assert.False(t, s.Ready())
}

func TestRunStopsOnCycleError(t *testing.T) {
	source, queries := populatedSource()
	var calls atomic.Int32
	usage := queries[types.CPU].Usage
	source.QueryFunc = func(ctx context.Context, expr string) ([]metrics.Row, error) {
		if expr == usage && calls.Add(1) == 2 {
			return nil, errors.New("connection reset")
		}
		if expr == queries[types.CPU].NodePrice || expr == queries[types.RAM].NodePrice || expr == queries[types.GPU].NodePrice {
			return []metrics.Row{price("x", 1)}, nil
		}
		return []metrics.Row{row("app", "x", 1)}, nil
	}

	s, _, _ := newTestScheduler(source, queries, time.Millisecond)

	done := make(chan error, 1)
	go func() {
		done <- s.Run(context.Background())
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection reset")
		assert.Equal(t, int64(1), s.Ticks())
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop after a failed cycle")
	}
}

func TestRunStopsCleanlyOnCancel(t *testing.T) {
	source, queries := populatedSource()
	s, _, _ := newTestScheduler(source, queries, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()

	require.Eventually(t, func() bool { return s.Ticks() >= 2 }, 5*time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}
}
