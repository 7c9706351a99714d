package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/jaeyoung0509/meltdown"
	"github.com/jaeyoung0509/meltdown/internal/config"
	"github.com/jaeyoung0509/meltdown/internal/services"
	"github.com/jaeyoung0509/meltdown/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const resourceName = "meltdownd"

// Version is set at build time.
var Version = "dev"

var (
	rootCmdOpts struct {
		configFile string
		cfg        *config.Config
	}

	rootCmd = &cobra.Command{
		Use:          resourceName,
		Short:        "Graceful shutdown supervisor",
		Long:         `Runs a metrics endpoint, a heartbeat and a signal watcher, and shuts all of them down when the first one stops`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootCmdOpts.cfg
			if rootCmdOpts.configFile != "" {
				if err := cfg.LoadFile(rootCmdOpts.configFile); err != nil {
					return fmt.Errorf("failed to load config file: %w", err)
				}
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if cfg.Debug {
				logrus.SetLevel(logrus.TraceLevel)
			}
			return run(cmd.Context(), cfg)
		},
	}
)

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cfg := config.New()
	rootCmdOpts.cfg = cfg

	rootCmd.Flags().StringVar(&rootCmdOpts.configFile, "config", "", "YAML configuration file, overlaid on the flags")
	rootCmd.Flags().StringVar(&cfg.MetricsAddress, "metrics-listen", cfg.MetricsAddress, "listen address for the metrics endpoint")
	rootCmd.Flags().DurationVar(&cfg.HeartbeatInterval, "heartbeat-interval", cfg.HeartbeatInterval, "interval between heartbeats")
	rootCmd.Flags().DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "maximum time to wait for services to stop after shutdown is triggered")
	rootCmd.Flags().BoolVar(&cfg.Debug, "debug", cfg.Debug, "debug logs")
	rootCmd.Flags().BoolVar(&cfg.Otel, "otel", cfg.Otel, "enable OpenTelemetry traces and metrics")
	rootCmd.Flags().StringVar(&cfg.OtelDir, "otel-dir", cfg.OtelDir, "directory for OpenTelemetry output files (stdout if empty)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	})
}

// run starts the services and triggers shutdown as soon as the first one
// stops or ctx ends. It returns the joined errors of every failed service.
func run(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	instanceID := uuid.NewString()
	log := logrus.WithField("instance", instanceID)

	var otelShutdown func(context.Context) error
	if cfg.Otel {
		var err error
		log.WithField("dir", cfg.OtelDir).Print("Enable otel exporters")
		otelShutdown, err = telemetry.Setup(ctx, resourceName, instanceID, cfg.OtelDir)
		if err != nil {
			log.WithError(err).Warning("Failed to setup OpenTelemetry SDK")
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	m := meltdown.New[string](meltdown.WithPanicIsolation(true), meltdown.WithLogger(log))
	m.RegisterTagged("signals", services.Signals()).
		RegisterTagged("metrics", services.HTTP(cfg.MetricsAddress, mux, cfg.ShutdownTimeout)).
		RegisterTagged("heartbeat", services.Heartbeat(cfg.HeartbeatInterval, func(n int) {
			log.WithField("beat", n).Debug("Heartbeat")
		}))

	var failed error
	report := func(c meltdown.Completion[string]) {
		entry := log.WithField("service", c.Tag)
		if c.Err != nil {
			entry.WithError(c.Err).Error("Service failed")
			failed = errors.Join(failed, fmt.Errorf("%v: %w", c.Tag, c.Err))
			return
		}
		entry.WithField("result", c.Value).Info("Service stopped")
	}

	c, ok, err := m.Next(ctx)
	switch {
	case err != nil:
		log.WithError(err).Info("Context done, shutting down")
	case ok:
		report(c)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	rest, err := m.Shutdown(stopCtx)
	for _, c := range rest {
		report(c)
	}
	if err != nil {
		log.WithField("pending", m.Len()).Error("Services did not stop in time")
		failed = errors.Join(failed, fmt.Errorf("timed out waiting for services to stop: %w", err))
	}

	if otelShutdown != nil {
		if err := otelShutdown(stopCtx); err != nil {
			log.WithError(err).Warning("Failed to shutdown OpenTelemetry SDK")
		}
	}
	return failed
}
