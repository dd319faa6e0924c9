package kernel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

type AppDiagnostic struct {
	Tracer trace.Tracer
	Meter  metric.Meter

	RequestCounter metric.Int64Counter
	ErrorCounter   metric.Int64Counter

	CheckedCounter   metric.Int64Counter
	UpdatedCounter   metric.Int64Counter
	RecoveredCounter metric.Int64Counter
	FailedCounter    metric.Int64Counter
	SkippedCounter   metric.Int64Counter
	ReviewCounter    metric.Int64Counter
	GatewayCounter   metric.Int64Counter
}

// NewDiagnostic registers the service instruments on meter. Instrument
// creation errors leave a no-op counter in place.
func NewDiagnostic(tracer trace.Tracer, meter metric.Meter) *AppDiagnostic {
	return &AppDiagnostic{
		Tracer: tracer,
		Meter:  meter,

		RequestCounter: counter(meter, "http_requests_total", "Total number of HTTP requests"),
		ErrorCounter:   counter(meter, "http_errors_total", "Total number of failed HTTP requests"),

		CheckedCounter:   counter(meter, "recon_records_checked_total", "Order codes compared against the gateway"),
		UpdatedCounter:   counter(meter, "recon_records_updated_total", "Ledger records moved forward to the gateway status"),
		RecoveredCounter: counter(meter, "recon_records_recovered_total", "Ledger records synthesized from gateway transactions"),
		FailedCounter:    counter(meter, "recon_records_failed_total", "Ledger writes that failed"),
		SkippedCounter:   counter(meter, "recon_records_skipped_total", "Order codes skipped because the gateway could not answer"),
		ReviewCounter:    counter(meter, "recon_review_total", "Divergences left for manual review"),
		GatewayCounter:   counter(meter, "gateway_requests_total", "Outbound gateway requests by outcome"),
	}
}

// TestDiagnostic is backed by the global (no-op unless configured) providers.
func TestDiagnostic() *AppDiagnostic {
	return NewDiagnostic(otel.Tracer("test-tracer"), otel.Meter("test-meter"))
}

func (diag *AppDiagnostic) BeginTracing(ctx context.Context, spanName string) (trace.Span, context.Context) {
	ctx, span := diag.Tracer.Start(ctx, spanName)
	return span, ctx
}

func counter(meter metric.Meter, name, description string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		return noop.Int64Counter{}
	}
	return c
}
