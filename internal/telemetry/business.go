package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/irfndi/tradeyodha-signals/internal/models"
)

// BusinessTracer wraps spans for the cron jobs and their per-ticker work.
type BusinessTracer struct {
	tracer trace.Tracer
}

// NewBusinessTracer creates a tracer bound to the global provider.
func NewBusinessTracer() *BusinessTracer {
	return &BusinessTracer{tracer: Tracer(ServiceName + "/jobs")}
}

// TraceRun starts the root span of one job invocation.
func (bt *BusinessTracer) TraceRun(ctx context.Context, job, runID string, forced bool) (context.Context, trace.Span) {
	return bt.tracer.Start(ctx, "job."+job,
		trace.WithAttributes(
			attribute.String("job", job),
			attribute.String("run_id", runID),
			attribute.Bool("forced", forced),
		),
	)
}

// RecordRunSummary annotates the run span with the final counters.
func (bt *BusinessTracer) RecordRunSummary(span trace.Span, summary models.RunSummary) {
	span.SetAttributes(
		attribute.String("status", summary.Status),
		attribute.Int("tickers", summary.Tickers),
		attribute.Int("signals_detected", summary.SignalsDetected),
		attribute.Int("alerts_created", summary.AlertsCreated),
		attribute.Int("points_written", summary.PointsWritten),
		attribute.Int64("elapsed_ms", summary.ElapsedMs),
	)
	if summary.Reason != "" {
		span.SetAttributes(attribute.String("reason", summary.Reason))
	}
	if summary.Status == models.RunStatusError {
		span.SetStatus(codes.Error, summary.Reason)
	}
}

// TraceTicker starts a child span for one ticker.
func (bt *BusinessTracer) TraceTicker(ctx context.Context, ticker string) (context.Context, trace.Span) {
	return bt.tracer.Start(ctx, "ticker.process", trace.WithAttributes(attribute.String("ticker", ticker)))
}

// RecordTickerResult annotates a ticker span with its outcome.
func (bt *BusinessTracer) RecordTickerResult(span trace.Span, result models.TickerResult) {
	span.SetAttributes(
		attribute.String("status", result.Status),
		attribute.Int("signals", result.Signals),
		attribute.Int("alerts", result.Alerts),
		attribute.Int("suppressed", result.Suppressed),
	)
	if result.Status == models.TickerStatusError {
		span.SetStatus(codes.Error, result.Message)
	}
}
