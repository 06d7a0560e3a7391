package types

import (
	"fmt"
	"strings"
)

// ResourceKind is the billed resource a cost record tracks
type ResourceKind string

const (
	CPU ResourceKind = "cpu"
	RAM ResourceKind = "ram"
	GPU ResourceKind = "gpu"
)

// AllResourceKinds lists every kind the scheduler polls each tick
var AllResourceKinds = []ResourceKind{CPU, RAM, GPU}

// ParseResourceKind converts a configuration string into a ResourceKind
func ParseResourceKind(s string) (ResourceKind, error) {
	switch ResourceKind(strings.ToLower(strings.TrimSpace(s))) {
	case CPU:
		return CPU, nil
	case RAM:
		return RAM, nil
	case GPU:
		return GPU, nil
	default:
		return "", fmt.Errorf("unknown resource kind: %q", s)
	}
}

func (k ResourceKind) String() string {
	return string(k)
}

// Label names that make up a container identity
const (
	LabelContainer = "container"
	LabelPod       = "pod"
	LabelNamespace = "namespace"
	LabelNode      = "node"
)

// IdentityLabels are the labels every usage row must carry
var IdentityLabels = []string{LabelContainer, LabelPod, LabelNamespace, LabelNode}

// IdentityKey correlates rows returned by independent queries.
// Kind is implied by the query that produced a row, never read from labels.
type IdentityKey struct {
	Kind      ResourceKind
	Container string
	Pod       string
	Namespace string
	Node      string
}

// MissingLabelError reports the first identity label absent from a label set
type MissingLabelError struct {
	Label string
}

func (e *MissingLabelError) Error() string {
	return fmt.Sprintf("missing required label %q", e.Label)
}

// KeyFromLabels extracts the identity of a row for the given kind
func KeyFromLabels(kind ResourceKind, labels map[string]string) (IdentityKey, error) {
	for _, name := range IdentityLabels {
		if _, ok := labels[name]; !ok {
			return IdentityKey{}, &MissingLabelError{Label: name}
		}
	}
	return IdentityKey{
		Kind:      kind,
		Container: labels[LabelContainer],
		Pod:       labels[LabelPod],
		Namespace: labels[LabelNamespace],
		Node:      labels[LabelNode],
	}, nil
}

// String renders the key the way it appears in logs and checkpoint rows
func (k IdentityKey) String() string {
	return fmt.Sprintf("%s.%s.%s.%s.%s", k.Kind, k.Container, k.Pod, k.Namespace, k.Node)
}

// GaugeLabels returns the label values in gauge order: resource, container, pod, namespace, node
func (k IdentityKey) GaugeLabels() []string {
	return []string{string(k.Kind), k.Container, k.Pod, k.Namespace, k.Node}
}
