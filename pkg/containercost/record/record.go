// Package record holds the per-container cost accrual state.
package record

import (
	"errors"
	"fmt"
	"math"

	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/common"
	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/metrics"
	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/types"
	"k8s.io/utils/ptr"
)

var (
	// ErrMissingLabel is returned when a usage row lacks an identity label
	ErrMissingLabel = errors.New("usage row is missing a required label")

	// ErrNotJoined is returned by ComputeCost before running time and node cost are known
	ErrNotJoined = errors.New("running time or node cost not joined")

	// ErrNonFinite is returned by ComputeCost when the inputs yield NaN or Inf and no
	// earlier cost exists to fall back to
	ErrNonFinite = errors.New("cost is not a finite number")
)

// CostRecord accrues the cost of one resource of one container.
// A record is only ever touched by the cycle of its own resource kind.
type CostRecord struct {
	key types.IdentityKey

	UsageValue     float64
	RequestValue   *float64 // GB for ram, cores for cpu
	NodeCost       *float64 // per second
	SecondsRunning *float64

	lastCost *float64
}

// New builds a record from a usage row
func New(row metrics.Row, kind types.ResourceKind) (*CostRecord, error) {
	key, err := types.KeyFromLabels(kind, row.Labels)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingLabel, err)
	}
	r := &CostRecord{key: key}
	r.ObserveUsage(row.Value)
	return r, nil
}

// NewForKey builds an empty record for a known identity
func NewForKey(key types.IdentityKey) *CostRecord {
	return &CostRecord{key: key}
}

// Key returns the identity this record accrues for
func (r *CostRecord) Key() types.IdentityKey {
	return r.key
}

// Kind returns the resource kind of the record
func (r *CostRecord) Kind() types.ResourceKind {
	return r.key.Kind
}

// ObserveUsage replaces the usage value with this cycle's raw sample.
// ram is stored in GB; cpu stays a cumulative counter until ApplyRunningTime.
func (r *CostRecord) ObserveUsage(value float64) {
	if r.key.Kind == types.RAM {
		value = value / common.BytesPerGB
	}
	r.UsageValue = value
}

// ApplyRunningTime sets the container uptime. For cpu it also turns the
// cumulative usage counter into a per-second average.
func (r *CostRecord) ApplyRunningTime(seconds float64) {
	r.SecondsRunning = ptr.To(seconds)
	if r.key.Kind == types.CPU && seconds != 0 {
		r.UsageValue = r.UsageValue / seconds
	}
}

// ApplyRequest sets the resource request
func (r *CostRecord) ApplyRequest(value float64) {
	if r.key.Kind == types.RAM {
		value = value / common.BytesPerGB
	}
	r.RequestValue = ptr.To(value)
}

// ApplyNodeCost sets the per-second unit price of the node
func (r *CostRecord) ApplyNodeCost(unitPrice float64) {
	r.NodeCost = ptr.To(unitPrice)
}

// SeedLastCost restores a previously reported cost, e.g. from a checkpoint.
// It never lowers the current value.
func (r *CostRecord) SeedLastCost(cost float64) {
	if r.lastCost == nil || cost > *r.lastCost {
		r.lastCost = ptr.To(cost)
	}
}

// LastCost returns the highest cost computed so far and whether one exists
func (r *CostRecord) LastCost() (float64, bool) {
	if r.lastCost == nil {
		return 0, false
	}
	return *r.lastCost, true
}

// Joinable reports whether ComputeCost has what it needs
func (r *CostRecord) Joinable() bool {
	return r.SecondsRunning != nil && r.NodeCost != nil
}

// BilledRate returns the request when the container reserved at least what it used,
// otherwise the usage
func (r *CostRecord) BilledRate() float64 {
	if r.RequestValue != nil && *r.RequestValue >= r.UsageValue {
		return *r.RequestValue
	}
	return r.UsageValue
}

// ComputeCost returns the cost to date, never lower than a previous result
func (r *CostRecord) ComputeCost() (float64, error) {
	if !r.Joinable() {
		return 0, fmt.Errorf("%w: %s", ErrNotJoined, r.key)
	}

	result := r.BilledRate() * *r.SecondsRunning * *r.NodeCost

	// NaN compares false against everything and would defeat the clamp below
	if math.IsNaN(result) || math.IsInf(result, 0) {
		if r.lastCost != nil {
			return *r.lastCost, nil
		}
		return 0, fmt.Errorf("%w: %s", ErrNonFinite, r.key)
	}

	if r.lastCost != nil && *r.lastCost > result {
		return *r.lastCost, nil
	}
	r.lastCost = ptr.To(result)
	return result, nil
}
