package main

import (
	"flag"
	"fmt"
)

// klog verbosity per LOG_LEVEL
var logLevelVerbosity = map[string]string{
	"debug":   "4",
	"info":    "2",
	"warning": "0",
	"warn":    "0",
	"error":   "0",
}

// applyLogLevel maps LOG_LEVEL onto klog flags. An explicit -v on the
// command line wins over the environment.
func applyLogLevel(fs *flag.FlagSet, level string, explicitVerbosity bool) error {
	verbosity, ok := logLevelVerbosity[level]
	if !ok {
		return fmt.Errorf("unknown log level: %s", level)
	}
	if !explicitVerbosity {
		if err := fs.Set("v", verbosity); err != nil {
			return fmt.Errorf("failed to set klog verbosity: %w", err)
		}
	}

	threshold := "INFO"
	switch level {
	case "warning", "warn":
		threshold = "WARNING"
	case "error":
		threshold = "ERROR"
	}
	// Honour the threshold while still logging to stderr only
	if err := fs.Set("legacy_stderr_threshold_behavior", "false"); err != nil {
		return fmt.Errorf("failed to set klog threshold behavior: %w", err)
	}
	if err := fs.Set("stderrthreshold", threshold); err != nil {
		return fmt.Errorf("failed to set klog stderr threshold: %w", err)
	}
	return nil
}
