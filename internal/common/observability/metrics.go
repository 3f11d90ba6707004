package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"

	"expiry-reminders/internal/common/logger"
)

type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider shutdowner
	meter          otelmetric.Meter
	tracer         trace.Tracer

	jobCounter      otelmetric.Int64Counter
	jobDuration     otelmetric.Float64Histogram
	batchCounter    otelmetric.Int64Counter
	batchDuration   otelmetric.Float64Histogram
	dispatchCounter otelmetric.Int64Counter

	logger logger.Logger
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// New installs the global meter provider (exported through the Prometheus
// registry) and, when tracing is on, the global tracer provider. Failures
// degrade to no-op instruments.
func New(serviceName string, tracing TracingOptions, log logger.Logger) *Observability {
	o := &Observability{
		logger: log,
		tracer: otel.Tracer(serviceName),
	}

	if tp, err := newTracerProvider(serviceName, tracing); err != nil {
		log.Warn("tracing disabled", map[string]interface{}{"error": err})
	} else if tp != nil {
		o.tracerProvider = tp
		o.tracer = tp.Tracer(serviceName)
	}

	exporter, err := prometheus.New()
	if err != nil {
		log.Warn("failed to create Prometheus exporter", map[string]interface{}{"error": err})
		return o
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)
	o.meterProvider = provider
	o.meter = meter

	o.jobCounter, _ = meter.Int64Counter(
		"jobs.processed",
		otelmetric.WithDescription("Number of jobs processed"),
	)
	o.jobDuration, _ = meter.Float64Histogram(
		"jobs.duration",
		otelmetric.WithDescription("Job processing duration"),
		otelmetric.WithUnit("ms"),
	)
	o.batchCounter, _ = meter.Int64Counter(
		"reminder.batches",
		otelmetric.WithDescription("Reminder batches by result"),
	)
	o.batchDuration, _ = meter.Float64Histogram(
		"reminder.batch.duration",
		otelmetric.WithDescription("Reminder batch wall time"),
		otelmetric.WithUnit("ms"),
	)
	o.dispatchCounter, _ = meter.Int64Counter(
		"reminder.dispatches",
		otelmetric.WithDescription("Logged dispatch outcomes"),
	)
	return o
}

func (o *Observability) Tracer() trace.Tracer {
	return o.tracer
}

func (o *Observability) RecordJobProcessed(ctx context.Context, status string) {
	if o.jobCounter != nil {
		o.jobCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordJobDuration(ctx context.Context, duration time.Duration, status string) {
	if o.jobDuration != nil {
		o.jobDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordBatch(ctx context.Context, result string, duration time.Duration) {
	attrs := otelmetric.WithAttributes(attribute.String("result", result))
	if o.batchCounter != nil {
		o.batchCounter.Add(ctx, 1, attrs)
	}
	if o.batchDuration != nil {
		o.batchDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
}

func (o *Observability) RecordDispatch(ctx context.Context, channel, status string) {
	if o.dispatchCounter != nil {
		o.dispatchCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("channel", channel),
			attribute.String("status", status),
		))
	}
}

func (o *Observability) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if o.meterProvider != nil {
		if err := o.meterProvider.Shutdown(ctx); err != nil {
			o.logger.Warn("meter provider shutdown failed", map[string]interface{}{"error": err})
		}
	}
	if o.tracerProvider != nil {
		if err := o.tracerProvider.Shutdown(ctx); err != nil {
			o.logger.Warn("tracer provider shutdown failed", map[string]interface{}{"error": err})
		}
	}
}
