package tracing

import (
	"context"
	"io"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/crankbench/internal/runner"
)

// StartInvocationSpan starts a span for one invocation of a workload.
func StartInvocationSpan(ctx context.Context, tracer trace.Tracer, kind, name string) (context.Context, trace.Span) {
	spanName := kind + " invocation"
	if name != "" {
		spanName = kind + " " + name
	}
	ctx, span := tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(attribute.String("crankbench.workload.kind", kind))
	if name != "" {
		span.SetAttributes(attribute.String("crankbench.workload.name", name))
	}
	return ctx, span
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// InjectHTTPHeaders injects W3C trace context into HTTP headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}

type spanWorkload struct {
	inner  runner.Workload
	tracer trace.Tracer
	kind   string
	name   string
}

// WithSpans wraps w so every invocation runs inside its own span. A nil
// tracer returns w unchanged.
func WithSpans(w runner.Workload, tracer trace.Tracer, kind, name string) runner.Workload {
	if tracer == nil {
		return w
	}
	return &spanWorkload{inner: w, tracer: tracer, kind: kind, name: name}
}

func (s *spanWorkload) Do(ctx context.Context) error {
	ctx, span := StartInvocationSpan(ctx, s.tracer, s.kind, s.name)
	err := s.inner.Do(ctx)
	EndSpan(span, err)
	return err
}

// Close closes the wrapped workload when it holds resources.
func (s *spanWorkload) Close() error {
	if c, ok := s.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
