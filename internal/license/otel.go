package license

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	licerr "cicadagallery/internal/errors"
)

const TracerName = "cicadagallery/license"

// Metrics holds the license OpenTelemetry instruments. A nil *Metrics
// records nothing.
type Metrics struct {
	ActivationAttempts metric.Int64Counter
	ActivationSuccess  metric.Int64Counter
	ActivationFailures metric.Int64Counter
	ActivationDuration metric.Float64Histogram
	Verifications      metric.Int64Counter
	StoreLoads         metric.Int64Counter
	CorruptRecoveries  metric.Int64Counter
}

// NewMetrics creates the license instruments on meter
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.ActivationAttempts, err = meter.Int64Counter(
		"license_activation_attempts_total",
		metric.WithDescription("Total number of license activation attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create activation attempts counter: %w", err)
	}

	m.ActivationSuccess, err = meter.Int64Counter(
		"license_activation_success_total",
		metric.WithDescription("Total number of successful license activations"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create activation success counter: %w", err)
	}

	m.ActivationFailures, err = meter.Int64Counter(
		"license_activation_failures_total",
		metric.WithDescription("Total number of failed license activations by reason"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create activation failures counter: %w", err)
	}

	m.ActivationDuration, err = meter.Float64Histogram(
		"license_activation_duration_seconds",
		metric.WithDescription("License activation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create activation duration histogram: %w", err)
	}

	m.Verifications, err = meter.Int64Counter(
		"license_verifications_total",
		metric.WithDescription("License verifications by result"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create verifications counter: %w", err)
	}

	m.StoreLoads, err = meter.Int64Counter(
		"license_store_loads_total",
		metric.WithDescription("License store loads by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create store loads counter: %w", err)
	}

	m.CorruptRecoveries, err = meter.Int64Counter(
		"license_store_corrupt_recoveries_total",
		metric.WithDescription("Corrupt license files moved aside"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create corrupt recoveries counter: %w", err)
	}

	return m, nil
}

func resultLabel(err error) string {
	if err == nil {
		return "valid"
	}
	return licerr.ErrorType(err)
}

func (m *Metrics) recordActivation(ctx context.Context, duration time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("result", resultLabel(err)))
	m.ActivationAttempts.Add(ctx, 1)
	m.ActivationDuration.Record(ctx, duration.Seconds(), attrs)
	if err != nil {
		m.ActivationFailures.Add(ctx, 1, attrs)
		return
	}
	m.ActivationSuccess.Add(ctx, 1)
}

func (m *Metrics) recordVerification(ctx context.Context, err error) {
	if m == nil {
		return
	}
	m.Verifications.Add(ctx, 1, metric.WithAttributes(attribute.String("result", resultLabel(err))))
}

func (m *Metrics) recordStoreLoad(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.StoreLoads.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) recordCorruptRecovery(ctx context.Context) {
	if m == nil {
		return
	}
	m.CorruptRecoveries.Add(ctx, 1)
}

// traceActivation wraps an activation attempt in a span.
func traceActivation(ctx context.Context, orderID string, fn func(context.Context) error) error {
	tracer := otel.Tracer(TracerName)
	ctx, span := tracer.Start(ctx, "license.activate",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("license.order_id", orderID),
			attribute.String("license.product_id", ProductID),
		),
	)
	defer span.End()

	err := fn(ctx)
	span.SetAttributes(attribute.String("license.result", resultLabel(err)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "license activated")
	}
	return err
}
