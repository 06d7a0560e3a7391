package registry

import (
	"fmt"
	"sync"

	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/metrics"
	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/record"
	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/types"
	"k8s.io/klog/v2"
)

// Registry owns every CostRecord for the lifetime of the process.
// Records are never evicted.
type Registry struct {
	records map[types.IdentityKey]*record.CostRecord
	seeds   map[types.IdentityKey]float64
	mutex   sync.RWMutex
}

// New creates an empty registry
func New() *Registry {
	return NewWithSeeds(nil)
}

// NewWithSeeds creates a registry whose new records start from previously
// reported costs, keyed by identity
func NewWithSeeds(seeds map[types.IdentityKey]float64) *Registry {
	if seeds == nil {
		seeds = make(map[types.IdentityKey]float64)
	}
	return &Registry{
		records: make(map[types.IdentityKey]*record.CostRecord),
		seeds:   seeds,
	}
}

// Resolve returns the record for a usage row, creating it on first sight.
// The returned bool is true when the record was created by this call.
func (r *Registry) Resolve(row metrics.Row, kind types.ResourceKind) (*record.CostRecord, bool, error) {
	key, err := types.KeyFromLabels(kind, row.Labels)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", record.ErrMissingLabel, err)
	}

	r.mutex.RLock()
	existing, ok := r.records[key]
	r.mutex.RUnlock()
	if ok {
		return existing, false, nil
	}

	created, err := record.New(row, kind)
	if err != nil {
		return nil, false, err
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if existing, ok := r.records[key]; ok {
		return existing, false, nil
	}
	if seed, ok := r.seeds[key]; ok {
		created.SeedLastCost(seed)
		delete(r.seeds, key)
		klog.V(3).InfoS("Restored checkpointed cost", "identity", key.String(), "cost", seed)
	}
	r.records[key] = created

	klog.V(4).InfoS("Tracking new container resource", "identity", key.String())
	return created, true, nil
}

// Get returns the record for a key if it exists
func (r *Registry) Get(key types.IdentityKey) (*record.CostRecord, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	rec, ok := r.records[key]
	return rec, ok
}

// Size returns the number of tracked records
func (r *Registry) Size() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.records)
}

// CountByKind returns the number of tracked records of one kind
func (r *Registry) CountByKind(kind types.ResourceKind) int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	n := 0
	for key := range r.records {
		if key.Kind == kind {
			n++
		}
	}
	return n
}
