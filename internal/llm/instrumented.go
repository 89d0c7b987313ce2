package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/haasonsaas/mira/internal/observability"
)

// Instrumented decorates a Gateway with metrics, tracing, logging and a
// per-call timeout.
type Instrumented struct {
	next     Gateway
	provider string
	model    string
	timeout  time.Duration
	metrics  *observability.Metrics
	tracer   *observability.Tracer
	logger   *slog.Logger
}

// InstrumentOption configures Instrument.
type InstrumentOption func(*Instrumented)

// WithMetrics records request counts and latency.
func WithMetrics(m *observability.Metrics) InstrumentOption {
	return func(i *Instrumented) { i.metrics = m }
}

// WithTracer emits an llm.complete span per call.
func WithTracer(t *observability.Tracer) InstrumentOption {
	return func(i *Instrumented) { i.tracer = t }
}

// WithLogger sets the logger for failed calls.
func WithLogger(l *slog.Logger) InstrumentOption {
	return func(i *Instrumented) { i.logger = l }
}

// WithTimeout bounds each call, retries included. Default: 60s
func WithTimeout(d time.Duration) InstrumentOption {
	return func(i *Instrumented) { i.timeout = d }
}

// Instrument wraps next.
func Instrument(next Gateway, provider, model string, opts ...InstrumentOption) *Instrumented {
	i := &Instrumented{
		next:     next,
		provider: provider,
		model:    model,
		metrics:  observability.Nop(),
		tracer:   observability.NopTracer(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.timeout = defaultTimeout(i.timeout)
	return i
}

// Complete implements Gateway.
func (i *Instrumented) Complete(ctx context.Context, req Request) (Completion, error) {
	ctx, span := i.tracer.TraceOracle(ctx, i.provider, i.model)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	start := time.Now()
	completion, err := i.next.Complete(ctx, req)
	i.metrics.OracleDuration.WithLabelValues(i.provider).Observe(time.Since(start).Seconds())

	status := "success"
	if err != nil {
		status = "error"
		observability.RecordError(span, err)
		i.logger.WarnContext(ctx, "oracle call failed",
			"provider", i.provider,
			"model", i.model,
			"error", err,
		)
	}
	i.metrics.OracleRequests.WithLabelValues(i.provider, status).Inc()
	return completion, err
}
