package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanOptions configures a telemetry span.
type SpanOptions struct {
	// Name is the operation name for the span.
	Name string

	// Attributes are key-value pairs attached to the span.
	Attributes []attribute.KeyValue

	// EndWhenDone controls whether the span is ended automatically on a
	// successful return. A span that returned an error is always ended.
	EndWhenDone bool
}

// RecordSpan starts a span around fn, recording any returned error onto the
// span before propagating it. This is the core's one entry point for
// span-scoped work: detect.go's render/blind probe loops each wrap one
// context's attempt in a RecordSpan call rather than managing span.End()
// by hand at every loop exit.
func RecordSpan[T any](
	ctx context.Context,
	tracer trace.Tracer,
	opts SpanOptions,
	fn func(context.Context, trace.Span) (T, error),
) (T, error) {
	ctx, span := tracer.Start(ctx, opts.Name,
		trace.WithAttributes(opts.Attributes...),
	)

	result, err := fn(ctx, span)

	if err != nil {
		RecordErrorOnSpan(span, err)
		span.End()
		var zero T
		return zero, err
	}

	if opts.EndWhenDone {
		span.End()
	}

	return result, nil
}

// RecordErrorOnSpan records an error on a span and sets the span status to
// error.
func RecordErrorOnSpan(span trace.Span, err error) {
	if err == nil {
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// ProbeAttributes returns the attributes common to every detection-probe
// span: the engine plugin and language family, plus any metadata the
// session's Settings carries.
func ProbeAttributes(plugin, language string, settings *Settings) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("plugin", plugin),
		attribute.String("language", language),
	}

	if settings != nil {
		for key, value := range settings.Metadata {
			attrs = append(attrs, attribute.KeyValue{
				Key:   attribute.Key("sstimap.metadata." + key),
				Value: value,
			})
		}
	}

	return attrs
}

// AddResultAttributes adds a probe's outcome as attributes on its span.
func AddResultAttributes(span trace.Span, result map[string]interface{}) {
	for key, value := range result {
		attrKey := "result." + key
		switch v := value.(type) {
		case string:
			span.SetAttributes(attribute.String(attrKey, v))
		case int:
			span.SetAttributes(attribute.Int(attrKey, v))
		case int64:
			span.SetAttributes(attribute.Int64(attrKey, v))
		case float64:
			span.SetAttributes(attribute.Float64(attrKey, v))
		case bool:
			span.SetAttributes(attribute.Bool(attrKey, v))
		}
	}
}
