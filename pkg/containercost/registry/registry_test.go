package registry

import (
	"errors"
	"sync"
	"testing"

	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/metrics"
	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/record"
	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/types"
)

func row(container, node string, value float64) metrics.Row {
	return metrics.Row{
		Labels: map[string]string{
			"container": container,
			"pod":       "p",
			"namespace": "n",
			"node":      node,
		},
		Value: value,
	}
}

func TestResolveCreatesOnce(t *testing.T) {
	reg := New()

	first, created, err := reg.Resolve(row("a", "x", 1), types.CPU)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if !created {
		t.Error("first Resolve() should create")
	}

	second, created, err := reg.Resolve(row("a", "x", 2), types.CPU)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if created {
		t.Error("second Resolve() should reuse")
	}
	if first != second {
		t.Error("Resolve() returned a different record for the same identity")
	}
	if reg.Size() != 1 {
		t.Errorf("Size() = %d, want 1", reg.Size())
	}
}

func TestResolveSeparatesKindAndNode(t *testing.T) {
	reg := New()

	cpuX, _, _ := reg.Resolve(row("a", "x", 1), types.CPU)
	cpuY, _, _ := reg.Resolve(row("a", "y", 1), types.CPU)
	ramX, _, _ := reg.Resolve(row("a", "x", 1), types.RAM)

	if cpuX == cpuY || cpuX == ramX {
		t.Fatal("distinct identities share a record")
	}
	if reg.CountByKind(types.CPU) != 2 || reg.CountByKind(types.RAM) != 1 || reg.CountByKind(types.GPU) != 0 {
		t.Errorf("CountByKind() = cpu:%d ram:%d gpu:%d",
			reg.CountByKind(types.CPU), reg.CountByKind(types.RAM), reg.CountByKind(types.GPU))
	}
}

func TestResolveMissingLabel(t *testing.T) {
	reg := New()
	bad := row("a", "x", 1)
	delete(bad.Labels, "namespace")

	_, _, err := reg.Resolve(bad, types.RAM)
	if !errors.Is(err, record.ErrMissingLabel) {
		t.Fatalf("Resolve() error = %v, want ErrMissingLabel", err)
	}
	if reg.Size() != 0 {
		t.Errorf("Size() = %d after failed Resolve()", reg.Size())
	}
}

func TestResolveAppliesSeed(t *testing.T) {
	key := types.IdentityKey{Kind: types.GPU, Container: "a", Pod: "p", Namespace: "n", Node: "x"}
	reg := NewWithSeeds(map[types.IdentityKey]float64{key: 12.5})

	rec, _, err := reg.Resolve(row("a", "x", 1), types.GPU)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	last, ok := rec.LastCost()
	if !ok || last != 12.5 {
		t.Errorf("LastCost() = %v, %v; want 12.5, true", last, ok)
	}

	got, ok := reg.Get(key)
	if !ok || got != rec {
		t.Error("Get() did not return the seeded record")
	}
}

func TestResolveConcurrentKinds(t *testing.T) {
	reg := New()
	var wg sync.WaitGroup
	for _, kind := range types.AllResourceKinds {
		wg.Add(1)
		go func(kind types.ResourceKind) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if _, _, err := reg.Resolve(row("c", "node", float64(i)), kind); err != nil {
					t.Errorf("Resolve() error: %v", err)
				}
			}
		}(kind)
	}
	wg.Wait()

	if reg.Size() != len(types.AllResourceKinds) {
		t.Errorf("Size() = %d, want %d", reg.Size(), len(types.AllResourceKinds))
	}
}
