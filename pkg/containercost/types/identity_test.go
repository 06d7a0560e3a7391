package types

import (
	"errors"
	"testing"
)

func TestKeyFromLabels(t *testing.T) {
	tests := []struct {
		name        string
		labels      map[string]string
		wantKey     IdentityKey
		wantMissing string
	}{
		{
			name: "all labels present",
			labels: map[string]string{
				"container": "app",
				"pod":       "app-7d9",
				"namespace": "default",
				"node":      "worker-1",
				"job":       "kubelet",
			},
			wantKey: IdentityKey{Kind: RAM, Container: "app", Pod: "app-7d9", Namespace: "default", Node: "worker-1"},
		},
		{
			name:        "missing node",
			labels:      map[string]string{"container": "app", "pod": "p", "namespace": "n"},
			wantMissing: "node",
		},
		{
			name:        "empty label set",
			labels:      map[string]string{},
			wantMissing: "container",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := KeyFromLabels(RAM, tt.labels)
			if tt.wantMissing != "" {
				var missing *MissingLabelError
				if !errors.As(err, &missing) {
					t.Fatalf("KeyFromLabels() error = %v, want MissingLabelError", err)
				}
				if missing.Label != tt.wantMissing {
					t.Errorf("missing label = %q, want %q", missing.Label, tt.wantMissing)
				}
				return
			}
			if err != nil {
				t.Fatalf("KeyFromLabels() unexpected error: %v", err)
			}
			if key != tt.wantKey {
				t.Errorf("KeyFromLabels() = %+v, want %+v", key, tt.wantKey)
			}
		})
	}
}

func TestKeysDifferingOnlyInNodeAreDistinct(t *testing.T) {
	base := map[string]string{"container": "c", "pod": "p", "namespace": "n", "node": "x"}
	other := map[string]string{"container": "c", "pod": "p", "namespace": "n", "node": "y"}

	a, _ := KeyFromLabels(CPU, base)
	b, _ := KeyFromLabels(CPU, other)
	if a == b {
		t.Errorf("keys on different nodes compare equal: %v", a)
	}

	c, _ := KeyFromLabels(GPU, base)
	if a == c {
		t.Errorf("keys of different kinds compare equal: %v", a)
	}
}

func TestParseResourceKind(t *testing.T) {
	for _, in := range []string{"cpu", "RAM", " gpu "} {
		if _, err := ParseResourceKind(in); err != nil {
			t.Errorf("ParseResourceKind(%q) error: %v", in, err)
		}
	}
	if _, err := ParseResourceKind("disk"); err == nil {
		t.Error("ParseResourceKind(\"disk\") expected error")
	}
}

func TestGaugeLabelsOrder(t *testing.T) {
	k := IdentityKey{Kind: CPU, Container: "c", Pod: "p", Namespace: "n", Node: "x"}
	got := k.GaugeLabels()
	want := []string{"cpu", "c", "p", "n", "x"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("GaugeLabels() = %v, want %v", got, want)
		}
	}
	if k.String() != "cpu.c.p.n.x" {
		t.Errorf("String() = %q", k.String())
	}
}
