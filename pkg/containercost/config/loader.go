package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/common"
	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/types"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
	"k8s.io/klog/v2"
)

// Load reads an optional .env file and then builds the configuration from the environment
func Load() (*Config, error) {
	LoadDotEnv()
	return LoadFromEnv()
}

// LoadDotEnv reads a .env file from the working directory into the environment
func LoadDotEnv() {
	// A missing .env file is not an error
	_ = godotenv.Load()
}

// LogLevelFromEnv returns LOG_LEVEL lower-cased, defaulting to warning
func LogLevelFromEnv() string {
	return strings.ToLower(getEnvOrDefault("LOG_LEVEL", "warning"))
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Backend: BackendConfig{
			URL:          os.Getenv("CORTEX"),
			PathPrefix:   lookupEnvOrDefault("QUERY_PATH_PREFIX", "/prometheus"),
			Tenant:       os.Getenv("CORTEX_TENANT"),
			QueryTimeout: getDurationOrDefault("QUERY_TIMEOUT", 30*time.Second),
		},
		Polling: PollingConfig{
			Interval: time.Duration(getIntOrDefault("REFRESH_FREQUENCY", 30)) * time.Second,
		},
		Server: ServerConfig{
			Port: getIntOrDefault("PORT", 9000),
		},
		Observability: ObservabilityConfig{
			LogLevel:        LogLevelFromEnv(),
			TracingExporter: strings.ToLower(getEnvOrDefault("OTEL_EXPORTER_TYPE", "none")),
			TracingEndpoint: getEnvOrDefault("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
		},
		Checkpoint: CheckpointConfig{
			Path:      os.Getenv("CHECKPOINT_PATH"),
			Retention: getDurationOrDefault("CHECKPOINT_RETENTION", 7*24*time.Hour),
		},
		Queries: DefaultQueries(),
	}

	if path := os.Getenv("QUERIES_PATH"); path != "" {
		if err := loadQueryOverrides(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load query overrides: %v", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %v", err)
	}

	return cfg, nil
}

// DefaultQueries returns the built-in query set for every resource kind
func DefaultQueries() map[types.ResourceKind]QuerySet {
	return map[types.ResourceKind]QuerySet{
		types.CPU: {
			Usage:          common.QueryCPUUsage,
			Requests:       common.QueryCPURequests,
			Uptime:         common.QueryContainerStart,
			NodePrice:      fmt.Sprintf(common.QueryNodeHourlyCostFormat, types.CPU),
			PriceNodeLabel: common.DefaultPriceNodeLabel,
		},
		types.RAM: {
			Usage:          common.QueryRAMUsage,
			Requests:       common.QueryRAMRequests,
			Uptime:         common.QueryContainerStart,
			NodePrice:      fmt.Sprintf(common.QueryNodeHourlyCostFormat, types.RAM),
			PriceNodeLabel: common.DefaultPriceNodeLabel,
		},
		types.GPU: {
			Usage:          common.QueryGPUUsage,
			Uptime:         common.QueryContainerStart,
			NodePrice:      fmt.Sprintf(common.QueryNodeHourlyCostFormat, types.GPU),
			PriceNodeLabel: common.DefaultPriceNodeLabel,
		},
	}
}

type queryOverrides struct {
	Queries map[string]QuerySet `yaml:"queries"`
}

// loadQueryOverrides merges non-empty expressions from a YAML file over the defaults
func loadQueryOverrides(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read queries file: %v", err)
	}

	overrides := &queryOverrides{}
	if err := yaml.Unmarshal(data, overrides); err != nil {
		return fmt.Errorf("failed to parse queries file: %v", err)
	}

	for name, qs := range overrides.Queries {
		kind, err := types.ParseResourceKind(name)
		if err != nil {
			return err
		}
		merged := cfg.Queries[kind]
		if qs.Usage != "" {
			merged.Usage = qs.Usage
		}
		if qs.Requests != "" {
			merged.Requests = qs.Requests
		}
		if qs.Uptime != "" {
			merged.Uptime = qs.Uptime
		}
		if qs.NodePrice != "" {
			merged.NodePrice = qs.NodePrice
		}
		if qs.PriceNodeLabel != "" {
			merged.PriceNodeLabel = qs.PriceNodeLabel
		}
		cfg.Queries[kind] = merged

		klog.V(2).InfoS("Applied query overrides", "resource", kind, "path", path)
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// lookupEnvOrDefault honours an explicitly empty value
func lookupEnvOrDefault(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if strValue := os.Getenv(key); strValue != "" {
		if value, err := strconv.Atoi(strValue); err == nil {
			return value
		}
		klog.V(2).InfoS("Invalid integer value, using default",
			"key", key,
			"value", strValue,
			"default", defaultValue)
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if strValue := os.Getenv(key); strValue != "" {
		if value, err := time.ParseDuration(strValue); err == nil {
			return value
		}
		klog.V(2).InfoS("Invalid duration value, using default",
			"key", key,
			"value", strValue,
			"default", defaultValue)
	}
	return defaultValue
}
