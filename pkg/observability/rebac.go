// Package observability provides rebac-specific instrumentation helpers
// layered on top of the generic Provider.
package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Decision semantic convention attributes.
var (
	AttrSubject = attribute.Key("rebac.subject")
	AttrAction  = attribute.Key("rebac.action")
	AttrObject  = attribute.Key("rebac.object")
	AttrAllowed = attribute.Key("rebac.allowed")
	AttrDepth   = attribute.Key("rebac.depth")
)

// CheckOperation builds the attribute set for a single Check call.
func CheckOperation(subject, action, object string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrSubject.String(subject),
		AttrAction.String(action),
		AttrObject.String(object),
	}
}

// DecisionOutcome appends the allowed/denied result to an attribute set
// built by CheckOperation, once the decision is known.
func DecisionOutcome(attrs []attribute.KeyValue, allowed bool) []attribute.KeyValue {
	return append(attrs, AttrAllowed.Bool(allowed))
}

// SpanFromContext extracts the span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus records err on the current span, if any.
func SetSpanStatus(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
	}
}
