package containercost

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/aggregator"
	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/registry"
	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/types"
	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/klog/v2"
)

const (
	// Name identifies the exporter in logs and traces
	Name = "container-cost-exporter"
)

// Scheduler runs the cpu, ram and gpu cycles side by side on every tick
// and sleeps for the configured interval between ticks
type Scheduler struct {
	aggregator *aggregator.Aggregator
	registry   *registry.Registry
	interval   time.Duration
	kinds      []types.ResourceKind

	ready atomic.Bool
	ticks atomic.Int64
}

// NewScheduler creates a scheduler over all resource kinds
func NewScheduler(agg *aggregator.Aggregator, reg *registry.Registry, interval time.Duration) *Scheduler {
	return &Scheduler{
		aggregator: agg,
		registry:   reg,
		interval:   interval,
		kinds:      types.AllResourceKinds,
	}
}

// Run ticks until ctx is cancelled or a cycle fails. Cancellation is a
// clean stop and returns nil; a failed cycle is returned as is.
func (s *Scheduler) Run(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	klog.InfoS("Starting cost polling", "interval", s.interval, "resources", s.kinds)

	var runErr error
	wait.UntilWithContext(loopCtx, func(ctx context.Context) {
		if err := s.Tick(ctx); err != nil {
			runErr = err
			cancel()
		}
	}, s.interval)

	if runErr != nil && ctx.Err() == nil {
		return runErr
	}
	klog.InfoS("Stopped cost polling", "ticks", s.ticks.Load())
	return nil
}

// Tick runs one cycle per resource kind concurrently and waits for all of them.
// The first failing cycle cancels the others.
func (s *Scheduler) Tick(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, kind := range s.kinds {
		g.Go(func() error {
			return s.runCycle(gctx, kind)
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}

	s.ticks.Add(1)
	if !s.ready.Swap(true) {
		klog.InfoS("First polling tick completed", "trackedRecords", s.registry.Size())
	}
	return nil
}

func (s *Scheduler) runCycle(ctx context.Context, kind types.ResourceKind) error {
	start := time.Now()
	result, err := s.aggregator.RunCycle(ctx, kind)
	CycleDuration.WithLabelValues(kind.String()).Observe(time.Since(start).Seconds())
	TrackedRecords.WithLabelValues(kind.String()).Set(float64(s.registry.CountByKind(kind)))

	if err != nil {
		CycleResults.WithLabelValues(kind.String(), "error").Inc()
		klog.ErrorS(err, "Cost cycle failed", "resource", kind)
		return fmt.Errorf("%s cycle: %w", kind, err)
	}

	outcome := "success"
	if result.Stats.AbortedMalformed {
		outcome = "aborted"
	}
	CycleResults.WithLabelValues(kind.String(), outcome).Inc()
	ReportedRecords.WithLabelValues(kind.String()).Set(float64(result.Stats.Reported))
	DroppedRows.WithLabelValues(kind.String(), "no_uptime").Add(float64(result.Stats.NoUptime))
	DroppedRows.WithLabelValues(kind.String(), "no_node_cost").Add(float64(result.Stats.NoNodeCost))
	DroppedRows.WithLabelValues(kind.String(), "invalid_start_time").Add(float64(result.Stats.ExcludedUptime))
	DroppedRows.WithLabelValues(kind.String(), "non_finite").Add(float64(result.Stats.NonFinite))
	return nil
}

// Ready reports whether at least one tick has completed
func (s *Scheduler) Ready() bool {
	return s.ready.Load()
}

// Ticks returns the number of completed ticks
func (s *Scheduler) Ticks() int64 {
	return s.ticks.Load()
}
