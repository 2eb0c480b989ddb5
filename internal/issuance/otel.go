package issuance

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the issuer instruments. A nil *Metrics records nothing.
type Metrics struct {
	Requests       metric.Int64Counter
	LicensesIssued metric.Int64Counter
	Lockouts       metric.Int64Counter
}

// NewMetrics creates the issuer instruments on meter
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	requests, err := meter.Int64Counter("issuer_requests_total",
		metric.WithDescription("Issue requests by result"))
	if err != nil {
		return nil, fmt.Errorf("failed to create requests counter: %w", err)
	}
	issued, err := meter.Int64Counter("issuer_licenses_issued_total",
		metric.WithDescription("Licenses signed and returned"))
	if err != nil {
		return nil, fmt.Errorf("failed to create issued counter: %w", err)
	}
	lockouts, err := meter.Int64Counter("issuer_lockouts_total",
		metric.WithDescription("Clients locked out after failed lookups"))
	if err != nil {
		return nil, fmt.Errorf("failed to create lockouts counter: %w", err)
	}
	return &Metrics{Requests: requests, LicensesIssued: issued, Lockouts: lockouts}, nil
}

func (m *Metrics) recordRequest(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.Requests.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	if result == "issued" {
		m.LicensesIssued.Add(ctx, 1)
	}
}

func (m *Metrics) recordLockout(ctx context.Context) {
	if m == nil {
		return
	}
	m.Lockouts.Add(ctx, 1)
}
