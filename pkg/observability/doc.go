// Package observability provides OpenTelemetry tracing and metrics for the
// rebac decision engine. It implements production-ready observability
// following cloud-native best practices.
//
// # Tracing and metrics
//
// Initialize a provider at application startup:
//
//	p, err := observability.New(ctx, observability.DefaultConfig())
//	defer p.Shutdown(ctx)
//
// Wrap a decision with TrackOperation to get a span, a request/error/duration
// RED metric triple, and an active-operation gauge in one call:
//
//	attrs := observability.CheckOperation(who.String(), string(action), onWhat.String())
//	ctx, finish := p.TrackOperation(ctx, "rebac.check", attrs...)
//	allowed, err := engine.Check(ctx, who, action, onWhat)
//	finish(err)
//
// Record the outcome once it is known:
//
//	observability.AddSpanEvent(ctx, "decision", observability.DecisionOutcome(attrs, allowed)...)
package observability
