package orchestrator

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/vaamx/modelmux/types"
)

const instrumentationName = "github.com/vaamx/modelmux/orchestrator"

// Metrics wraps the otel instruments the orchestrator records into. It uses
// the global meter/tracer providers; exporter wiring belongs to the embedding
// application. All methods are no-ops under the default SDK.
type Metrics struct {
	tracer trace.Tracer

	requests  metric.Int64Counter
	errors    metric.Int64Counter
	retries   metric.Int64Counter
	cacheHits metric.Int64Counter
	cacheMiss metric.Int64Counter

	duration metric.Float64Histogram
	tokens   metric.Int64Histogram
	cost     metric.Float64Histogram
}

// NewMetrics creates the instrument set. Creation errors are ignored: the
// otel API guarantees usable no-op instruments alongside any error.
func NewMetrics() *Metrics {
	meter := otel.Meter(instrumentationName)

	requests, _ := meter.Int64Counter("modelmux.requests",
		metric.WithDescription("Completed orchestrator calls by operation, model, provider, and outcome"))
	errs, _ := meter.Int64Counter("modelmux.errors",
		metric.WithDescription("Terminal errors by code"))
	retries, _ := meter.Int64Counter("modelmux.retries",
		metric.WithDescription("Retry attempts by error code"))
	cacheHits, _ := meter.Int64Counter("modelmux.cache.hits",
		metric.WithDescription("Response cache hits"))
	cacheMiss, _ := meter.Int64Counter("modelmux.cache.misses",
		metric.WithDescription("Response cache misses"))
	duration, _ := meter.Float64Histogram("modelmux.request.duration",
		metric.WithDescription("End-to-end request duration"),
		metric.WithUnit("s"))
	tokens, _ := meter.Int64Histogram("modelmux.request.tokens",
		metric.WithDescription("Total tokens per request"))
	cost, _ := meter.Float64Histogram("modelmux.request.cost",
		metric.WithDescription("Estimated request cost"),
		metric.WithUnit("USD"))

	return &Metrics{
		tracer:    otel.Tracer(instrumentationName),
		requests:  requests,
		errors:    errs,
		retries:   retries,
		cacheHits: cacheHits,
		cacheMiss: cacheMiss,
		duration:  duration,
		tokens:    tokens,
		cost:      cost,
	}
}

// StartSpan opens a span for one orchestrator operation.
func (m *Metrics) StartSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "modelmux."+op)
}

// RecordRequest records a terminal outcome.
func (m *Metrics) RecordRequest(ctx context.Context, op, model, providerName string, cached bool, elapsed time.Duration, usage types.TokenUsage, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
		m.errors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("code", string(types.GetErrorCode(err))),
			attribute.String("operation", op),
		))
	}

	attrs := metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("model", model),
		attribute.String("provider", providerName),
		attribute.String("outcome", outcome),
		attribute.Bool("cached", cached),
	)
	m.requests.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
	if usage.TotalTokens > 0 {
		m.tokens.Record(ctx, int64(usage.TotalTokens), attrs)
	}
	if usage.Cost > 0 {
		m.cost.Record(ctx, usage.Cost, attrs)
	}
}

// RecordRetry counts one retry attempt.
func (m *Metrics) RecordRetry(ctx context.Context, code types.ErrorCode) {
	m.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("code", string(code))))
}

// RecordCache counts a cache lookup result.
func (m *Metrics) RecordCache(ctx context.Context, op string, hit bool) {
	attrs := metric.WithAttributes(attribute.String("operation", op))
	if hit {
		m.cacheHits.Add(ctx, 1, attrs)
	} else {
		m.cacheMiss.Add(ctx, 1, attrs)
	}
}
