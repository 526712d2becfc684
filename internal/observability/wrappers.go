package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/mtafiti/internal/llm"
)

// InstrumentedProvider wraps an llm.Provider with metrics and tracing.
// Both metrics and tracer may be nil; recording is skipped per nil field.
type InstrumentedProvider struct {
	provider llm.Provider
	metrics  *MetricsCollector
	tracer   trace.Tracer
}

var _ llm.Provider = (*InstrumentedProvider)(nil)

// NewInstrumentedProvider wraps provider with observability.
func NewInstrumentedProvider(provider llm.Provider, metrics *MetricsCollector, tracer trace.Tracer) *InstrumentedProvider {
	return &InstrumentedProvider{
		provider: provider,
		metrics:  metrics,
		tracer:   tracer,
	}
}

// Name returns the wrapped provider's name.
func (p *InstrumentedProvider) Name() string {
	return p.provider.Name()
}

// Generate calls the wrapped provider, recording a span and request metrics.
func (p *InstrumentedProvider) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	start := time.Now()
	providerName := p.provider.Name()

	var span trace.Span
	if p.tracer != nil {
		ctx, span = p.tracer.Start(ctx, "llm.generate",
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("llm.provider", providerName),
			),
		)
		defer span.End()
	}

	resp, err := p.provider.Generate(ctx, req)

	duration := time.Since(start)
	status := "success"
	if err != nil {
		status = "error"
	}

	if p.metrics != nil {
		p.metrics.LLMRequestsTotal.WithLabelValues(providerName, status).Inc()
		p.metrics.LLMRequestDuration.WithLabelValues(providerName).Observe(duration.Seconds())
		if resp != nil {
			p.metrics.LLMTokensUsed.WithLabelValues(providerName, "input").Add(float64(resp.Usage.InputTokens))
			p.metrics.LLMTokensUsed.WithLabelValues(providerName, "output").Add(float64(resp.Usage.OutputTokens))
		}
	}

	if span != nil {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
			if resp != nil {
				span.SetAttributes(
					attribute.Int("llm.tokens.input", resp.Usage.InputTokens),
					attribute.Int("llm.tokens.output", resp.Usage.OutputTokens),
				)
			}
		}
	}

	return resp, err
}
