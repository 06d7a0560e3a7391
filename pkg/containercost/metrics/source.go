package metrics

import (
	"context"
	"time"
)

// Row is a single instant-vector sample returned by a query
type Row struct {
	Labels    map[string]string
	Value     float64
	Timestamp time.Time
}

// QuerySource runs an instant query against the metrics backend
type QuerySource interface {
	Query(ctx context.Context, expr string) ([]Row, error)
}

// Label returns the value of a label and whether it was present
func (r Row) Label(name string) (string, bool) {
	v, ok := r.Labels[name]
	return v, ok
}
