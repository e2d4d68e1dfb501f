// Package telemetry wires OpenTelemetry tracing around a release run.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartCommandSpan creates a span for a CLI command execution.
//
//	ctx, span := telemetry.StartCommandSpan(ctx, "release")
//	defer span.End()
func StartCommandSpan(ctx context.Context, cmdName string) (context.Context, trace.Span) {
	tracer := Provider().Tracer("commands")
	ctx, span := tracer.Start(ctx, "command."+cmdName)
	span.SetAttributes(
		attribute.String("command", cmdName),
		attribute.String("component", "cli"),
	)
	return ctx, span
}

// StartStageSpan creates a span for one pipeline stage of a run.
func StartStageSpan(ctx context.Context, stage, runID string) (context.Context, trace.Span) {
	tracer := Provider().Tracer("pipeline")
	ctx, span := tracer.Start(ctx, "stage."+stage)
	span.SetAttributes(
		attribute.String("stage", stage),
		attribute.String("run_id", runID),
		attribute.String("component", "pipeline"),
	)
	return ctx, span
}

// StartRollbackSpan creates a span covering a rollback.
func StartRollbackSpan(ctx context.Context, runID string) (context.Context, trace.Span) {
	tracer := Provider().Tracer("pipeline")
	ctx, span := tracer.Start(ctx, "rollback")
	span.SetAttributes(
		attribute.String("run_id", runID),
		attribute.String("component", "rollback"),
	)
	return ctx, span
}

// RecordSuccess marks a span as successful with optional result attributes.
func RecordSuccess(span trace.Span, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
	span.SetStatus(codes.Ok, "")
}

// RecordError records err on span and sets error status. A nil err is a
// no-op.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.Bool("error", true))
}

// RecordOutcome tags span with a stage outcome.
func RecordOutcome(span trace.Span, outcome string) {
	span.SetAttributes(attribute.String("outcome", outcome))
}

// RecordDuration records the duration of an operation as a span attribute.
func RecordDuration(span trace.Span, name string, duration time.Duration) {
	span.SetAttributes(attribute.Int64(name+"_ms", duration.Milliseconds()))
}
