// Package otel bridges toolwatch observability events into OpenTelemetry
// metrics and traces.
package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/petal-labs/toolwatch/watch"
)

// WatchObserver records fingerprint check outcomes into OpenTelemetry.
type WatchObserver struct {
	tracer trace.Tracer

	checks    metric.Int64Counter
	mutations metric.Int64Counter
	duration  metric.Float64Histogram
}

// NewWatchObserver creates a watch observer bound to the provided
// meter/tracer. tracer may be nil to disable per-check spans.
func NewWatchObserver(meter metric.Meter, tracer trace.Tracer) (*WatchObserver, error) {
	checks, err := meter.Int64Counter(
		"toolwatch.checks",
		metric.WithDescription("Number of fingerprint checks"),
	)
	if err != nil {
		return nil, err
	}
	mutations, err := meter.Int64Counter(
		"toolwatch.mutations",
		metric.WithDescription("Number of detected tool mutations"),
	)
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram(
		"toolwatch.check.duration",
		metric.WithDescription("Fingerprint check duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &WatchObserver{
		tracer:    tracer,
		checks:    checks,
		mutations: mutations,
		duration:  duration,
	}, nil
}

// ObserveCheck records one check outcome.
func (o *WatchObserver) ObserveCheck(observation watch.CheckObservation) {
	if o == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("tool_name", observation.ToolName),
		attribute.Bool("mutated", observation.Mutated),
		attribute.Bool("first_seen", observation.FirstSeen),
	}
	if observation.Mutated {
		attrs = append(attrs,
			attribute.String("change_type", string(observation.ChangeType)),
			attribute.String("severity", string(observation.Severity)),
			attribute.Bool("suppressed", observation.Suppressed),
		)
	}
	if observation.Error != "" {
		attrs = append(attrs, attribute.String("error", observation.Error))
	}

	ctx := context.Background()
	options := metric.WithAttributes(attrs...)
	o.checks.Add(ctx, 1, options)
	if observation.Mutated {
		o.mutations.Add(ctx, 1, options)
	}
	o.duration.Record(ctx, float64(time.Duration(observation.DurationMS)*time.Millisecond)/float64(time.Second), options)

	if o.tracer == nil {
		return
	}
	_, span := o.tracer.Start(ctx, "toolwatch.check", trace.WithAttributes(attrs...))
	switch {
	case observation.Error != "":
		span.SetStatus(codes.Error, observation.Error)
	case observation.Mutated:
		span.SetStatus(codes.Error, string(observation.ChangeType))
	default:
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

var _ watch.Observer = (*WatchObserver)(nil)
