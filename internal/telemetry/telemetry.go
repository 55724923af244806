// Package telemetry wraps OpenTelemetry span creation for the two places
// spec §4.11/§4.9 cross a routing boundary: a command envelope leaving the
// router toward the host, and an event envelope entering the dispatcher
// toward a worker slot. Grounded on the goa-ai example's tracer-field +
// trace.WithAttributes span shape (runtime/toolregistry/executor/executor.go);
// every span here is its own root, since neither boundary carries an
// inbound trace context to continue.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"glitchscript/internal/protocol"
)

const tracerName = "glitchscript/manager"

// Tracer issues spans for command and event envelopes. The zero value is
// not usable; construct with New.
type Tracer struct {
	tracer trace.Tracer
}

// New wraps the global otel tracer provider's tracer for this module. A
// host that never calls otel.SetTracerProvider gets otel's no-op
// implementation, so Tracer is always safe to use even with tracing
// unconfigured.
func New() *Tracer {
	return &Tracer{tracer: otel.Tracer(tracerName)}
}

// CommandSpan starts a span for one routed command envelope (spec §4.11).
func (t *Tracer) CommandSpan(ctx context.Context, env protocol.CommandEnvelope) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "command."+string(env.Command.Type),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("glitchscript.script_id", env.ScriptID),
			attribute.String("glitchscript.container_id", env.ContainerID),
			attribute.Int64("glitchscript.call_id", int64(env.CallID)),
		),
	)
}

// EventSpan starts a span for one dispatched event envelope (spec §4.9).
func (t *Tracer) EventSpan(ctx context.Context, env protocol.EventEnvelope) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "event."+string(env.Event.Type),
		trace.WithAttributes(
			attribute.String("glitchscript.target_object_id", env.TargetObjectID),
			attribute.String("glitchscript.target_script_id", env.TargetScriptID),
			attribute.Bool("glitchscript.broadcast", env.Broadcast()),
		),
	)
}

// End closes span, recording err as a span error when non-nil.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
