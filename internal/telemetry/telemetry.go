package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

// Setup bootstraps the OpenTelemetry pipeline. Traces and metrics are
// written to files under dir, or to stdout when dir is empty.
// If it does not return an error, make sure to call shutdown for proper cleanup.
func Setup(ctx context.Context, name, instanceID, dir string) (shutdown func(context.Context) error, err error) {
	var traceProvider *sdktrace.TracerProvider
	var meterProvider *sdkmetric.MeterProvider
	var files []*os.File

	shutdown = func(ctx context.Context) error {
		var shutdownErrs error
		if meterProvider != nil {
			if err := meterProvider.Shutdown(ctx); err != nil {
				logrus.WithError(err).Warning("Failed to shut down otel meter provider")
				shutdownErrs = errors.Join(shutdownErrs, err)
			}
		}
		if traceProvider != nil {
			if err := traceProvider.Shutdown(ctx); err != nil {
				logrus.WithError(err).Warning("Failed to shut down otel trace provider")
				shutdownErrs = errors.Join(shutdownErrs, err)
			}
		}
		for _, f := range files {
			if err := f.Close(); err != nil {
				logrus.WithError(err).WithField("file", f.Name()).Warning("Failed to close otel file")
				shutdownErrs = errors.Join(shutdownErrs, err)
			}
		}
		return shutdownErrs
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(name),
			semconv.ServiceInstanceIDKey.String(instanceID),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create otel resource: %w", err)
	}

	var traceOut, metricOut io.Writer = os.Stdout, os.Stdout
	if dir != "" {
		traceFile, err := openAppend(filepath.Join(dir, name+"-traces.txt"))
		if err != nil {
			shutdown(ctx)
			return nil, err
		}
		files = append(files, traceFile)
		metricFile, err := openAppend(filepath.Join(dir, name+"-metrics.txt"))
		if err != nil {
			shutdown(ctx)
			return nil, err
		}
		files = append(files, metricFile)
		traceOut, metricOut = traceFile, metricFile
	}

	traceExporter, err := stdouttrace.New(
		stdouttrace.WithPrettyPrint(),
		stdouttrace.WithWriter(traceOut),
	)
	if err != nil {
		shutdown(ctx)
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	traceProvider = sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(traceExporter)),
	)
	otel.SetTracerProvider(traceProvider)

	metricExporter, err := stdoutmetric.New(
		stdoutmetric.WithPrettyPrint(),
		stdoutmetric.WithWriter(metricOut),
	)
	if err != nil {
		shutdown(ctx)
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}
	meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)

	return shutdown, nil
}

func openAppend(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open otel file %s: %w", path, err)
	}
	return f, nil
}
