// Package aggregator runs one polling cycle for one resource kind: it fetches
// usage, uptime, node price and request series, joins them onto cost records
// by identity, computes cost and forwards the result to the sink.
package aggregator

import (
	"context"
	"errors"
	"fmt"

	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/clock"
	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/common"
	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/config"
	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/metrics"
	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/record"
	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/registry"
	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/sink"
	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/klog/v2"
)

// CheckpointWriter persists the last reported cost per identity
type CheckpointWriter interface {
	Save(ctx context.Context, costs map[types.IdentityKey]float64) error
}

// CycleStats counts what happened to the usage rows of one cycle
type CycleStats struct {
	UsageRows        int
	Reported         int
	NoUptime         int // dropped: no uptime row for the identity
	NoNodeCost       int // dropped: node price never joined
	ExcludedUptime   int // uptime rows with a non-positive or future start time
	NonFinite        int // dropped: NaN or Inf cost with no earlier value
	AbortedMalformed bool
}

// CycleResult is the outcome of one cycle
type CycleResult struct {
	Kind    types.ResourceKind
	Records []*record.CostRecord // records whose cost was pushed to the sink
	Stats   CycleStats
}

// Aggregator orchestrates polling cycles
type Aggregator struct {
	source     metrics.QuerySource
	registry   *registry.Registry
	sink       sink.Sink
	queries    map[types.ResourceKind]config.QuerySet
	clock      clock.Clock
	checkpoint CheckpointWriter
	tracer     trace.Tracer
}

// Option customizes an Aggregator
type Option func(*Aggregator)

// WithClock overrides the clock used as poll time
func WithClock(c clock.Clock) Option {
	return func(a *Aggregator) {
		a.clock = c
	}
}

// WithCheckpoint persists reported costs after every cycle
func WithCheckpoint(w CheckpointWriter) Option {
	return func(a *Aggregator) {
		a.checkpoint = w
	}
}

// New creates an aggregator
func New(source metrics.QuerySource, reg *registry.Registry, s sink.Sink, queries map[types.ResourceKind]config.QuerySet, opts ...Option) *Aggregator {
	a := &Aggregator{
		source:   source,
		registry: reg,
		sink:     s,
		queries:  queries,
		clock:    clock.RealClock{},
		tracer:   otel.Tracer("container-cost-exporter/aggregator"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RunCycle polls, joins and reports one resource kind.
// Query failures are returned; data problems are logged and only shorten the cycle.
func (a *Aggregator) RunCycle(ctx context.Context, kind types.ResourceKind) (*CycleResult, error) {
	ctx, span := a.tracer.Start(ctx, "cycle",
		trace.WithAttributes(attribute.String("resource", kind.String())))
	defer span.End()

	result, err := a.runCycle(ctx, kind)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cycle failed")
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("usage_rows", result.Stats.UsageRows),
		attribute.Int("reported", result.Stats.Reported),
	)
	return result, nil
}

func (a *Aggregator) runCycle(ctx context.Context, kind types.ResourceKind) (*CycleResult, error) {
	qs, ok := a.queries[kind]
	if !ok {
		return nil, fmt.Errorf("no queries configured for resource %s", kind)
	}

	klog.V(2).InfoS("Calculating runtime cost", "resource", kind)

	result := &CycleResult{Kind: kind}
	now := a.clock.Now()

	usage, err := a.source.Query(ctx, qs.Usage)
	if err != nil {
		return nil, fmt.Errorf("fetching %s usage: %w", kind, err)
	}
	result.Stats.UsageRows = len(usage)

	uptimeRows, err := a.source.Query(ctx, qs.Uptime)
	if err != nil {
		return nil, fmt.Errorf("fetching %s uptime: %w", kind, err)
	}
	running, excluded := runningSeconds(kind, uptimeRows, now.Unix())
	result.Stats.ExcludedUptime = excluded

	priceRows, err := a.source.Query(ctx, qs.NodePrice)
	if err != nil {
		return nil, fmt.Errorf("fetching %s node prices: %w", kind, err)
	}
	prices := nodeSecondCost(priceRows, qs.PriceNodeLabel)

	var requests map[types.IdentityKey]float64
	if qs.Requests != "" {
		requestRows, err := a.source.Query(ctx, qs.Requests)
		if err != nil {
			return nil, fmt.Errorf("fetching %s requests: %w", kind, err)
		}
		requests = indexByIdentity(kind, requestRows)
	}

	joined := make([]*record.CostRecord, 0, len(usage))
	for _, row := range usage {
		rec, _, err := a.registry.Resolve(row, kind)
		if err != nil {
			// Rows after a malformed one are not billed this cycle
			klog.ErrorS(err, "Malformed usage row, skipping remaining rows for this cycle",
				"resource", kind,
				"labels", row.Labels)
			result.Stats.AbortedMalformed = true
			break
		}
		rec.ObserveUsage(row.Value)

		key := rec.Key()
		seconds, ok := running[key]
		if !ok {
			result.Stats.NoUptime++
			klog.V(4).InfoS("No uptime for container, not billing this cycle", "identity", key.String())
			continue
		}
		rec.ApplyRunningTime(seconds)

		if price, ok := prices[key.Node]; ok {
			rec.ApplyNodeCost(price)
		}
		if req, ok := requests[key]; ok {
			rec.ApplyRequest(req)
		}

		joined = append(joined, rec)
	}

	costs := make(map[types.IdentityKey]float64, len(joined))
	for _, rec := range joined {
		cost, err := rec.ComputeCost()
		if err != nil {
			if errors.Is(err, record.ErrNotJoined) {
				result.Stats.NoNodeCost++
				klog.V(2).InfoS("No node price known, not billing", "identity", rec.Key().String())
				continue
			}
			if errors.Is(err, record.ErrNonFinite) {
				result.Stats.NonFinite++
				klog.V(2).InfoS("Cost is not a finite number, not billing", "identity", rec.Key().String())
				continue
			}
			return nil, err
		}
		a.sink.Set(rec.Key(), cost)
		costs[rec.Key()] = cost
		result.Records = append(result.Records, rec)
	}
	result.Stats.Reported = len(result.Records)

	if a.checkpoint != nil && len(costs) > 0 {
		if err := a.checkpoint.Save(ctx, costs); err != nil {
			klog.ErrorS(err, "Failed to checkpoint costs", "resource", kind, "count", len(costs))
		}
	}

	klog.V(2).InfoS("Finished runtime cost cycle",
		"resource", kind,
		"usageRows", result.Stats.UsageRows,
		"reported", result.Stats.Reported,
		"noUptime", result.Stats.NoUptime,
		"noNodeCost", result.Stats.NoNodeCost,
		"excludedUptime", result.Stats.ExcludedUptime,
		"nonFinite", result.Stats.NonFinite)

	return result, nil
}

// runningSeconds maps each identity to poll time minus container start time.
// Start times at or below zero, or after the poll time, are not billable.
func runningSeconds(kind types.ResourceKind, rows []metrics.Row, nowUnix int64) (map[types.IdentityKey]float64, int) {
	out := make(map[types.IdentityKey]float64, len(rows))
	excluded := 0
	for _, row := range rows {
		start := int64(row.Value)
		if start <= 0 || start > nowUnix {
			excluded++
			continue
		}
		key, err := types.KeyFromLabels(kind, row.Labels)
		if err != nil {
			continue
		}
		if _, seen := out[key]; seen {
			continue
		}
		out[key] = float64(nowUnix - start)
	}
	return out, excluded
}

// nodeSecondCost converts hourly node prices into per-second prices keyed by node name
func nodeSecondCost(rows []metrics.Row, nodeLabel string) map[string]float64 {
	out := make(map[string]float64, len(rows))
	for _, row := range rows {
		node, ok := row.Label(nodeLabel)
		if !ok {
			continue
		}
		if _, seen := out[node]; seen {
			continue
		}
		out[node] = row.Value / common.SecondsPerHour
	}
	return out
}

func indexByIdentity(kind types.ResourceKind, rows []metrics.Row) map[types.IdentityKey]float64 {
	out := make(map[types.IdentityKey]float64, len(rows))
	for _, row := range rows {
		key, err := types.KeyFromLabels(kind, row.Labels)
		if err != nil {
			continue
		}
		out[key] = row.Value
	}
	return out
}
