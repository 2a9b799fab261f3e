package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	toolwatchotel "github.com/petal-labs/toolwatch/otel"
	"github.com/petal-labs/toolwatch/watch"
)

// NewServeCmd creates the "serve" subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the watch scheduler in the foreground",
		Long: "Run the watch scheduler in the foreground. Declared tools are\n" +
			"re-fingerprinted on their configured interval or cron schedule, mutations\n" +
			"are persisted as alerts, and the process runs until interrupted.",
		RunE: runServe,
	}
	cmd.Flags().String("config", "", "Path to toolwatch.yaml (default: ./toolwatch.yaml, then ~/.toolwatch/config.yaml)")
	cmd.Flags().Duration("interval", 5*time.Second, "Scheduler poll interval")
	cmd.Flags().String("otlp-endpoint", "", "OTLP HTTP endpoint for trace export (host:port)")
	addStoreFlags(cmd)
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	explicitConfigPath, _ := cmd.Flags().GetString("config")
	pollInterval, _ := cmd.Flags().GetDuration("interval")

	configPath, found, err := watch.DiscoverConfigPath(explicitConfigPath)
	if err != nil {
		return exitError(exitRuntime, "discovering config: %v", err)
	}
	if !found {
		return exitError(exitValidation, "no toolwatch config found (use --config)")
	}
	config, err := watch.LoadConfig(configPath)
	if err != nil {
		return exitError(exitValidation, "loading config: %v", err)
	}

	watchStore, closeStore, err := resolveStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	tracer, shutdownTracing, err := setupTracing(cmd)
	if err != nil {
		return err
	}
	defer shutdownTracing()

	observer, err := toolwatchotel.NewWatchObserver(
		otelapi.GetMeterProvider().Meter("toolwatch/watch"),
		tracer,
	)
	if err != nil {
		return exitError(exitRuntime, "initializing watch observability: %v", err)
	}
	watch.SetObserver(observer)
	defer watch.SetObserver(nil)

	// Seed the in-memory registry from persisted baselines so restarts do not
	// re-trust tools that already have a baseline.
	registry := watch.NewRegistry(watch.RegistryConfig{})
	baselines, err := watchStore.Baselines(cmd.Context())
	if err != nil {
		return exitError(exitRuntime, "loading baselines: %v", err)
	}
	for _, baseline := range baselines {
		if err := registry.AddBaseline(baseline); err != nil {
			return exitError(exitRuntime, "seeding baseline for %q: %v", baseline.ToolName, err)
		}
	}

	out := cmd.OutOrStdout()
	scheduler, err := watch.NewScheduler(watch.SchedulerConfig{
		Registry:     registry,
		Capturer:     watch.NewFileCapturer(nil),
		Config:       config,
		Store:        watchStore,
		PollInterval: pollInterval,
		Tracer:       tracer,
		OnEvent: func(event watch.CheckEvent) {
			switch {
			case event.Error != nil:
				fmt.Fprintf(out, "check %s: error: %v\n", event.ToolName, event.Error)
			case event.FirstSeen:
				fmt.Fprintf(out, "check %s: trusted first observation\n", event.ToolName)
			case event.Alert != nil && event.Suppressed:
				fmt.Fprintf(out, "check %s: %s suppressed by alert_on\n", event.ToolName, event.Alert.ChangeType)
			case event.Alert != nil:
				fmt.Fprintf(out, "check %s: ALERT %s (%s)\n", event.ToolName, event.Alert.ChangeType, event.Alert.Severity)
			default:
				fmt.Fprintf(out, "check %s: ok\n", event.ToolName)
			}
		},
	})
	if err != nil {
		return exitError(exitRuntime, "creating scheduler: %v", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := scheduler.Start(ctx); err != nil {
		return exitError(exitRuntime, "starting scheduler: %v", err)
	}
	fmt.Fprintf(out, "Watching %d tool(s) from %s\n", len(config.Tools), configPath)

	<-ctx.Done()
	fmt.Fprintln(out, "Shutting down...")
	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := scheduler.Stop(stopCtx); err != nil {
		return exitError(exitRuntime, "stopping scheduler: %v", err)
	}
	return nil
}

// setupTracing wires an OTLP HTTP trace exporter when --otlp-endpoint is set.
// Without it the global (noop by default) tracer provider is used.
func setupTracing(cmd *cobra.Command) (trace.Tracer, func(), error) {
	endpoint, _ := cmd.Flags().GetString("otlp-endpoint")
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return otelapi.GetTracerProvider().Tracer("toolwatch/watch"), func() {}, nil
	}

	exporter, err := otlptracehttp.New(cmd.Context(),
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, nil, exitError(exitRuntime, "creating otlp exporter: %v", err)
	}

	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = provider.Shutdown(ctx)
	}
	return provider.Tracer("toolwatch/watch"), shutdown, nil
}
