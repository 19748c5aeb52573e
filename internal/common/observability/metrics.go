package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"office-affinity/internal/common/logger"
)

// Observability bundles the OpenTelemetry meter and tracer used by the engine.
// A nil *Observability is valid and records nothing.
type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	syncCounter    otelmetric.Int64Counter
	syncDuration   otelmetric.Float64Histogram
	groupDuration  otelmetric.Float64Histogram
}

// Options configures New.
type Options struct {
	ServiceName string
	TraceStdout bool
	Logger      logger.Logger
}

func New(opts Options) *Observability {
	log := logger.ForComponent(opts.Logger, "observability")
	o := &Observability{tracer: noop.NewTracerProvider().Tracer(opts.ServiceName)}

	exporter, err := prometheus.New()
	if err != nil {
		log.Warn("Failed to create Prometheus exporter", map[string]interface{}{"error": err})
	} else {
		provider := metric.NewMeterProvider(metric.WithReader(exporter))
		otel.SetMeterProvider(provider)
		o.meterProvider = provider

		meter := provider.Meter(opts.ServiceName)
		o.syncCounter, _ = meter.Int64Counter(
			"calendar.sync.completed",
			otelmetric.WithDescription("Number of finished calendar syncs"),
		)
		o.syncDuration, _ = meter.Float64Histogram(
			"calendar.sync.duration",
			otelmetric.WithDescription("Calendar sync duration including retries"),
			otelmetric.WithUnit("ms"),
		)
		o.groupDuration, _ = meter.Float64Histogram(
			"affinity.grouping.duration",
			otelmetric.WithDescription("Grouping pass duration"),
			otelmetric.WithUnit("ms"),
		)
	}

	if tp, err := newTracerProvider(opts); err != nil {
		log.Warn("Tracing disabled", map[string]interface{}{"error": err})
	} else if tp != nil {
		otel.SetTracerProvider(tp)
		o.tracerProvider = tp
		o.tracer = tp.Tracer(opts.ServiceName)
	}

	return o
}

// StartSpan starts a span named name. The returned span must be ended.
func (o *Observability) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if o == nil || o.tracer == nil {
		return noop.NewTracerProvider().Tracer("").Start(ctx, name)
	}
	return o.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (o *Observability) RecordSync(ctx context.Context, duration time.Duration, mode, outcome string) {
	if o == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("outcome", outcome),
	)
	if o.syncCounter != nil {
		o.syncCounter.Add(ctx, 1, attrs)
	}
	if o.syncDuration != nil {
		o.syncDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
}

func (o *Observability) RecordGrouping(ctx context.Context, duration time.Duration, groups int) {
	if o == nil || o.groupDuration == nil {
		return
	}
	o.groupDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
		attribute.Int("groups", groups),
	))
}

func (o *Observability) Shutdown() {
	if o == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if o.tracerProvider != nil {
		_ = o.tracerProvider.Shutdown(ctx)
	}
	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
	}
}
