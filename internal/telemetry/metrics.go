package telemetry

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/joshu-sajeev/hookqueue"

// Metrics holds the queue and webhook instruments.
type Metrics struct {
	jobsProcessed    metric.Int64Counter
	deliveries       metric.Int64Counter
	deliveryDuration metric.Float64Histogram
	retries          metric.Int64Counter
	inbound          metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	jobsProcessed, err := meter.Int64Counter("jobs_processed_total",
		metric.WithDescription("Jobs finished by workers, by type and outcome."))
	if err != nil {
		return nil, err
	}
	deliveries, err := meter.Int64Counter("webhook_deliveries_total",
		metric.WithDescription("Outbound webhook delivery attempts, by event type and outcome."))
	if err != nil {
		return nil, err
	}
	deliveryDuration, err := meter.Float64Histogram("webhook_delivery_duration_seconds",
		metric.WithDescription("Duration of outbound webhook HTTP calls."),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	retries, err := meter.Int64Counter("webhook_retry_count",
		metric.WithDescription("Outbound webhook attempts after the first, by attempt number."))
	if err != nil {
		return nil, err
	}
	inbound, err := meter.Int64Counter("webhook_inbound_total",
		metric.WithDescription("Inbound webhook requests, by result code."))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		jobsProcessed:    jobsProcessed,
		deliveries:       deliveries,
		deliveryDuration: deliveryDuration,
		retries:          retries,
		inbound:          inbound,
	}, nil
}

// NewGlobalMetrics registers the instruments on the global meter provider.
func NewGlobalMetrics() (*Metrics, error) {
	return NewMetrics(otel.GetMeterProvider().Meter(instrumentationName))
}

// NopMetrics discards every measurement.
func NopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter(instrumentationName))
	return m
}

func (m *Metrics) JobProcessed(ctx context.Context, jobType, outcome string) {
	m.jobsProcessed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", jobType),
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) Delivery(ctx context.Context, eventType, outcome string, attempt int, took time.Duration) {
	m.deliveries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("outcome", outcome),
	))
	m.deliveryDuration.Record(ctx, took.Seconds(), metric.WithAttributes(
		attribute.String("event_type", eventType),
	))
	if attempt > 1 {
		m.retries.Add(ctx, 1, metric.WithAttributes(
			attribute.String("attempt_number", strconv.Itoa(attempt)),
		))
	}
}

func (m *Metrics) Inbound(ctx context.Context, result string) {
	m.inbound.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// Tracer returns the package tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}
