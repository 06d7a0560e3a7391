package clients

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/config"
	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/metrics"
	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/klog/v2"
)

const defaultQueryTimeout = 30 * time.Second

// instantQuerier is the subset of v1.API the exporter needs
type instantQuerier interface {
	Query(ctx context.Context, query string, ts time.Time, opts ...v1.Option) (model.Value, v1.Warnings, error)
}

// PrometheusQuerySource implements metrics.QuerySource against a Prometheus-compatible HTTP API
// (Prometheus, Cortex, Mimir, Thanos)
type PrometheusQuerySource struct {
	client       instantQuerier
	queryTimeout time.Duration
	tracer       trace.Tracer
	now          func() time.Time
}

var _ metrics.QuerySource = &PrometheusQuerySource{}

// NewPrometheusQuerySource creates a query source for the configured backend
func NewPrometheusQuerySource(cfg config.BackendConfig) (*PrometheusQuerySource, error) {
	address := strings.TrimRight(cfg.URL, "/") + cfg.PathPrefix

	client, err := api.NewClient(api.Config{
		Address:      address,
		RoundTripper: newTenantRoundTripper(cfg.Tenant, api.DefaultRoundTripper),
	})
	if err != nil {
		return nil, fmt.Errorf("error creating Prometheus client: %w", err)
	}

	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}

	klog.InfoS("Created Prometheus query client",
		"address", address,
		"tenant", cfg.Tenant,
		"queryTimeout", timeout)

	return newPrometheusQuerySource(v1.NewAPI(client), timeout), nil
}

func newPrometheusQuerySource(client instantQuerier, timeout time.Duration) *PrometheusQuerySource {
	return &PrometheusQuerySource{
		client:       client,
		queryTimeout: timeout,
		tracer:       otel.Tracer("container-cost-exporter/metrics"),
		now:          time.Now,
	}
}

// Query runs an instant query and flattens the result into rows.
// Transport errors and unexpected result types are returned to the caller.
func (c *PrometheusQuerySource) Query(ctx context.Context, expr string) ([]metrics.Row, error) {
	ctx, span := c.tracer.Start(ctx, "prometheus.query",
		trace.WithAttributes(attribute.String("query", expr)))
	defer span.End()

	queryCtx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	klog.V(4).InfoS("Querying metrics backend", "query", expr)

	result, warnings, err := c.client.Query(queryCtx, expr, c.now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("error querying Prometheus: %w", err)
	}

	if len(warnings) > 0 {
		klog.V(2).InfoS("Warnings received from Prometheus query",
			"warnings", warnings,
			"query", expr)
	}

	rows, err := rowsFromValue(result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unexpected result")
		return nil, err
	}

	span.SetAttributes(attribute.Int("rows", len(rows)))
	return rows, nil
}

func rowsFromValue(v model.Value) ([]metrics.Row, error) {
	if v == nil {
		return nil, fmt.Errorf("empty result from Prometheus")
	}

	switch result := v.(type) {
	case model.Vector:
		rows := make([]metrics.Row, 0, len(result))
		for _, sample := range result {
			labels := make(map[string]string, len(sample.Metric))
			for name, value := range sample.Metric {
				labels[string(name)] = string(value)
			}
			rows = append(rows, metrics.Row{
				Labels:    labels,
				Value:     float64(sample.Value),
				Timestamp: sample.Timestamp.Time(),
			})
		}
		return rows, nil
	case *model.Scalar:
		return []metrics.Row{{
			Labels:    map[string]string{},
			Value:     float64(result.Value),
			Timestamp: result.Timestamp.Time(),
		}}, nil
	default:
		return nil, fmt.Errorf("unexpected result type from Prometheus: %s", v.Type().String())
	}
}
