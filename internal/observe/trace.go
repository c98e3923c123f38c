package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/voicerelay"

// UtteranceIDKey is the span attribute carrying the utterance being played.
const UtteranceIDKey = attribute.Key("utterance.id")

type utteranceKey struct{}

// Tracer returns the relay tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// WithUtterance scopes ctx to one utterance. Spans started with [StartSpan]
// and loggers from [Logger] under ctx are tagged with its ID.
func WithUtterance(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, utteranceKey{}, id)
}

// UtteranceID returns the ID set by [WithUtterance], or "".
func UtteranceID(ctx context.Context) string {
	id, _ := ctx.Value(utteranceKey{}).(string)
	return id
}

// StartSpan starts a span on the relay tracer. The caller must end it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if id := UtteranceID(ctx); id != "" {
		opts = append(opts, trace.WithAttributes(UtteranceIDKey.String(id)))
	}
	return Tracer().Start(ctx, name, opts...)
}

// SpanError marks span failed with err. A nil err is ignored.
func SpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// CorrelationID returns the trace ID of the span in ctx, or "".
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger with the trace, span and utterance IDs
// found in ctx.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if id := UtteranceID(ctx); id != "" {
		l = l.With(slog.String("utterance_id", id))
	}
	return l
}
