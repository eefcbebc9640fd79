package main

import (
	"context"

	"github.com/cuemby/charmed-norris/pkg/log"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// tracerName names the operator's tracer
const tracerName = "github.com/cuemby/charmed-norris/cmd/norris-operator"

// telemetry owns the tracer provider for one operator process. Ended spans
// are written to the log; there is no exporter.
type telemetry struct {
	provider *sdktrace.TracerProvider
}

func newTelemetry() *telemetry {
	processor := &logSpanProcessor{logger: log.WithComponent("trace")}
	return &telemetry{
		provider: sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(processor)),
	}
}

func (t *telemetry) Tracer() trace.Tracer {
	return t.provider.Tracer(tracerName)
}

func (t *telemetry) Close() {
	_ = t.provider.Shutdown(context.Background())
}

// logSpanProcessor logs every span when it ends
type logSpanProcessor struct {
	logger zerolog.Logger
}

func (p *logSpanProcessor) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (p *logSpanProcessor) OnEnd(span sdktrace.ReadOnlySpan) {
	evt := p.logger.Debug()
	if span.Status().Code == codes.Error {
		evt = p.logger.Warn().Str("error", span.Status().Description)
	}

	evt = evt.
		Str("span", span.Name()).
		Str("trace_id", span.SpanContext().TraceID().String()).
		Dur("duration", span.EndTime().Sub(span.StartTime()))
	for _, attr := range span.Attributes() {
		evt = addAttribute(evt, attr)
	}
	evt.Msg("Span ended")
}

func (p *logSpanProcessor) Shutdown(context.Context) error {
	return nil
}

func (p *logSpanProcessor) ForceFlush(context.Context) error {
	return nil
}

func addAttribute(evt *zerolog.Event, attr attribute.KeyValue) *zerolog.Event {
	key := string(attr.Key)
	switch attr.Value.Type() {
	case attribute.BOOL:
		return evt.Bool(key, attr.Value.AsBool())
	case attribute.INT64:
		return evt.Int64(key, attr.Value.AsInt64())
	case attribute.FLOAT64:
		return evt.Float64(key, attr.Value.AsFloat64())
	default:
		return evt.Str(key, attr.Value.Emit())
	}
}
