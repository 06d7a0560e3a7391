package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/metrics"
)

// MockQuerySource implements metrics.QuerySource for testing.
// Results are keyed by the exact query expression.
type MockQuerySource struct {
	QueryFunc func(ctx context.Context, expr string) ([]metrics.Row, error)
	Results   map[string][]metrics.Row
	Errors    map[string]error

	mu      sync.Mutex
	queries []string
}

// NewMockQuerySource creates a mock with empty result tables
func NewMockQuerySource() *MockQuerySource {
	return &MockQuerySource{
		Results: make(map[string][]metrics.Row),
		Errors:  make(map[string]error),
	}
}

// Query delegates to QueryFunc if set, otherwise looks up the canned tables.
// Unknown expressions return an empty result.
func (m *MockQuerySource) Query(ctx context.Context, expr string) ([]metrics.Row, error) {
	m.mu.Lock()
	m.queries = append(m.queries, expr)
	m.mu.Unlock()

	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, expr)
	}
	if err, ok := m.Errors[expr]; ok {
		return nil, err
	}
	rows, ok := m.Results[expr]
	if !ok {
		return nil, nil
	}
	// Hand out copies so callers cannot mutate the table between cycles
	out := make([]metrics.Row, len(rows))
	for i, r := range rows {
		labels := make(map[string]string, len(r.Labels))
		for k, v := range r.Labels {
			labels[k] = v
		}
		out[i] = metrics.Row{Labels: labels, Value: r.Value, Timestamp: r.Timestamp}
	}
	return out, nil
}

// Set replaces the canned result for expr
func (m *MockQuerySource) Set(expr string, rows ...metrics.Row) {
	m.Results[expr] = rows
}

// Fail makes expr return an error
func (m *MockQuerySource) Fail(expr string, format string, args ...interface{}) {
	m.Errors[expr] = fmt.Errorf(format, args...)
}

// Queries returns every expression issued so far
func (m *MockQuerySource) Queries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.queries))
	copy(out, m.queries)
	return out
}
