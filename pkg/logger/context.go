package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

type fieldsKey struct{}

// With attaches fields to ctx for loggers built with Fields.
func With(ctx context.Context, fields ...any) context.Context {
	prev, _ := ctx.Value(fieldsKey{}).([]any)
	merged := make([]any, 0, len(prev)+len(fields))
	merged = append(merged, prev...)
	merged = append(merged, fields...)
	return context.WithValue(ctx, fieldsKey{}, merged)
}

// Fields returns what With attached plus the ids of the active span, if any.
func Fields(ctx context.Context) []any {
	stored, _ := ctx.Value(fieldsKey{}).([]any)
	fields := make([]any, 0, len(stored)+4)
	fields = append(fields, stored...)
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields, "otel_trace_id", sc.TraceID().String(), "span_id", sc.SpanID().String())
	}
	return fields
}

