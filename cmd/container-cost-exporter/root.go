package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/elevated-systems/container-cost-exporter/pkg/containercost"
	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/aggregator"
	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/checkpoint"
	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/config"
	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/metrics/clients"
	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/registry"
	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/server"
	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/sink"
	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/telemetry"
	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/types"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"k8s.io/component-base/metrics/legacyregistry"
	"k8s.io/klog/v2"
)

// version is set at build time
var version = "dev"

func newRootCommand() *cobra.Command {
	klogFlags := flag.NewFlagSet("klog", flag.ExitOnError)
	klog.InitFlags(klogFlags)

	cmd := &cobra.Command{
		Use:           containercost.Name,
		Short:         "Exports the running cost of every container as a Prometheus gauge",
		Long:          "Polls a Prometheus-compatible backend for container usage, requests, uptime and node prices, and exposes container_runtime_cost_total.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, klogFlags)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	cmd.PersistentFlags().AddGoFlagSet(klogFlags)

	cmd.AddCommand(&cobra.Command{
		Use:   "check-config",
		Short: "Load and validate the configuration, then print the effective queries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, klogFlags)
			if err != nil {
				return err
			}
			printConfig(cmd, cfg)
			return nil
		},
	})

	return cmd
}

func loadConfig(cmd *cobra.Command, klogFlags *flag.FlagSet) (*config.Config, error) {
	config.LoadDotEnv()

	// klog must be configured before the loader logs anything
	explicit := cmd.Flags().Changed("v")
	if err := applyLogLevel(klogFlags, config.LogLevelFromEnv(), explicit); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	klog.V(2).InfoS("Loaded configuration",
		"backend", cfg.Backend.URL,
		"pathPrefix", cfg.Backend.PathPrefix,
		"tenant", cfg.Backend.Tenant,
		"port", cfg.Server.Port,
		"interval", cfg.Polling.Interval,
		"checkpoint", cfg.Checkpoint.Path)
	return cfg, nil
}

func printConfig(cmd *cobra.Command, cfg *config.Config) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "backend:   %s%s\n", cfg.Backend.URL, cfg.Backend.PathPrefix)
	if cfg.Backend.Tenant != "" {
		fmt.Fprintf(out, "tenant:    %s\n", cfg.Backend.Tenant)
	}
	fmt.Fprintf(out, "interval:  %s\n", cfg.Polling.Interval)
	fmt.Fprintf(out, "port:      %d\n", cfg.Server.Port)
	for _, kind := range types.AllResourceKinds {
		qs := cfg.Queries[kind]
		fmt.Fprintf(out, "\n[%s]\n", kind)
		fmt.Fprintf(out, "usage:     %s\n", qs.Usage)
		if qs.Requests != "" {
			fmt.Fprintf(out, "requests:  %s\n", qs.Requests)
		}
		fmt.Fprintf(out, "uptime:    %s\n", qs.Uptime)
		fmt.Fprintf(out, "price:     %s (node label %s)\n", qs.NodePrice, qs.PriceNodeLabel)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	shutdownTracer, err := telemetry.InitTracer(containercost.Name, version, cfg.Observability)
	if err != nil {
		return fmt.Errorf("failed to init tracer: %w", err)
	}
	defer shutdownTracer()

	source, err := clients.NewPrometheusQuerySource(cfg.Backend)
	if err != nil {
		return fmt.Errorf("failed to create query source: %w", err)
	}

	var opts []aggregator.Option
	var seeds map[types.IdentityKey]float64
	if cfg.Checkpoint.Path != "" {
		store, err := checkpoint.NewSQLiteStore(cfg.Checkpoint.Path)
		if err != nil {
			return fmt.Errorf("failed to open checkpoint: %w", err)
		}
		defer store.Close()

		if _, err := store.Cleanup(ctx, cfg.Checkpoint.Retention); err != nil {
			klog.ErrorS(err, "Failed to clean up stale checkpoints")
		}
		seeds, err = store.LoadAll(ctx)
		if err != nil {
			return fmt.Errorf("failed to load checkpoint: %w", err)
		}
		opts = append(opts, aggregator.WithCheckpoint(store))
	}

	reg := registry.NewWithSeeds(seeds)
	gauge := sink.NewGaugeSink()
	legacyregistry.RawMustRegister(gauge.Collector())

	agg := aggregator.New(source, reg, gauge, cfg.Queries, opts...)
	scheduler := containercost.NewScheduler(agg, reg, cfg.Polling.Interval)
	srv := server.New(fmt.Sprintf(":%d", cfg.Server.Port), legacyregistry.DefaultGatherer, scheduler.Ready)

	klog.InfoS("Starting container cost exporter",
		"version", version,
		"backend", cfg.Backend.URL,
		"port", cfg.Server.Port,
		"interval", cfg.Polling.Interval,
		"checkpoint", cfg.Checkpoint.Path != "")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		return scheduler.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	klog.InfoS("Container cost exporter stopped", "trackedRecords", reg.Size())
	return nil
}
