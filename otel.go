package meltdown

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const otelName = "meltdown"

var (
	otelTracer   trace.Tracer
	otelMeter    metric.Meter
	registerCnt  metric.Int64Counter
	triggerCnt   metric.Int64Counter
	completedCnt metric.Int64Counter
)

func init() {
	var err error
	otelTracer = otel.Tracer(otelName)
	otelMeter = otel.Meter(otelName)

	registerCnt, err = otelMeter.Int64Counter(fmt.Sprintf("%s.register", otelName), metric.WithDescription("Number of registered services"))
	if err != nil {
		logrus.WithError(err).Warning("Otel failed to create register counter")
	}
	triggerCnt, err = otelMeter.Int64Counter(fmt.Sprintf("%s.trigger", otelName), metric.WithDescription("Number of shutdown triggers"))
	if err != nil {
		logrus.WithError(err).Warning("Otel failed to create trigger counter")
	}
	completedCnt, err = otelMeter.Int64Counter(fmt.Sprintf("%s.completed", otelName), metric.WithDescription("Number of completed services"))
	if err != nil {
		logrus.WithError(err).Warning("Otel failed to create completed counter")
	}
}

func startServiceSpan(tag any, tagged bool) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.Bool("tagged", tagged)}
	if tagged {
		attrs = append(attrs, attribute.String("tag", fmt.Sprint(tag)))
	}
	registerCnt.Add(context.Background(), 1)
	return otelTracer.Start(context.Background(), fmt.Sprintf("%s.service", otelName), trace.WithAttributes(attrs...))
}

func endServiceSpan(ctx context.Context, span trace.Span, err error) {
	result := errorToResultLabel(err)
	completedCnt.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	span.SetAttributes(attribute.String("result", result))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func recordOtelTrigger() {
	triggerCnt.Add(context.Background(), 1)
}
