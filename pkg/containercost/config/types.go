package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/types"
)

// Config holds all configuration for the container cost exporter
type Config struct {
	Backend       BackendConfig                   `yaml:"backend"`
	Polling       PollingConfig                   `yaml:"polling"`
	Server        ServerConfig                    `yaml:"server"`
	Observability ObservabilityConfig             `yaml:"observability"`
	Checkpoint    CheckpointConfig                `yaml:"checkpoint"`
	Queries       map[types.ResourceKind]QuerySet `yaml:"queries"`
}

// BackendConfig describes the Prometheus-compatible query endpoint
type BackendConfig struct {
	URL          string        `yaml:"url"`
	PathPrefix   string        `yaml:"pathPrefix"` // e.g. /prometheus for Cortex
	Tenant       string        `yaml:"tenant"`     // sent as X-Scope-OrgID when set
	QueryTimeout time.Duration `yaml:"queryTimeout"`
}

// PollingConfig controls the scheduler tick
type PollingConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// ServerConfig holds the scrape endpoint settings
type ServerConfig struct {
	Port int `yaml:"port"`
}

// ObservabilityConfig holds logging and tracing settings
type ObservabilityConfig struct {
	LogLevel        string `yaml:"logLevel"`
	TracingExporter string `yaml:"tracingExporter"` // none, stdout or otlp
	TracingEndpoint string `yaml:"tracingEndpoint"`
}

// CheckpointConfig enables persisting last reported costs across restarts
type CheckpointConfig struct {
	Path      string        `yaml:"path"`      // empty disables checkpointing
	Retention time.Duration `yaml:"retention"` // checkpoints untouched for longer are dropped at startup
}

// QuerySet is the four query shapes issued for one resource kind
type QuerySet struct {
	Usage          string `yaml:"usage"`
	Requests       string `yaml:"requests"` // optional; gpu has none
	Uptime         string `yaml:"uptime"`
	NodePrice      string `yaml:"nodePrice"`
	PriceNodeLabel string `yaml:"priceNodeLabel"`
}

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warning": true,
	"warn":    true,
	"error":   true,
}

var validTracingExporters = map[string]bool{
	"none":   true,
	"stdout": true,
	"otlp":   true,
}

// Validate performs validation of the configuration
func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("metrics backend URL is required")
	}
	u, err := url.Parse(c.Backend.URL)
	if err != nil {
		return fmt.Errorf("invalid metrics backend URL: %v", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("metrics backend URL must be absolute: %s", c.Backend.URL)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Polling.Interval <= 0 {
		return fmt.Errorf("refresh frequency must be positive")
	}

	if !validLogLevels[c.Observability.LogLevel] {
		return fmt.Errorf("unknown log level: %s", c.Observability.LogLevel)
	}

	if !validTracingExporters[c.Observability.TracingExporter] {
		return fmt.Errorf("unknown tracing exporter: %s", c.Observability.TracingExporter)
	}

	if c.Checkpoint.Path != "" && c.Checkpoint.Retention <= 0 {
		return fmt.Errorf("checkpoint retention must be positive")
	}

	for _, kind := range types.AllResourceKinds {
		qs, ok := c.Queries[kind]
		if !ok {
			return fmt.Errorf("no queries configured for resource %s", kind)
		}
		if err := qs.validate(); err != nil {
			return fmt.Errorf("invalid queries for resource %s: %v", kind, err)
		}
	}

	return nil
}

func (q QuerySet) validate() error {
	if q.Usage == "" {
		return fmt.Errorf("usage query is required")
	}
	if q.Uptime == "" {
		return fmt.Errorf("uptime query is required")
	}
	if q.NodePrice == "" {
		return fmt.Errorf("node price query is required")
	}
	if q.PriceNodeLabel == "" {
		return fmt.Errorf("price node label is required")
	}
	return nil
}
