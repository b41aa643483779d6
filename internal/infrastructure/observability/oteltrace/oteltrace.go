package oteltrace

import (
	"context"

	"github.com/greenloop/recyclemart/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type tracer struct{ t trace.Tracer }

// New returns a Tracer backed by the globally registered OTel provider.
// Initialize sdktrace.TracerProvider + exporter and call otel.SetTracerProvider
// before spans are exported anywhere.
func New(name string) observability.Tracer {
	if name == "" {
		name = "recyclemart"
	}
	return &tracer{t: otel.Tracer(name)}
}

func (t *tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.t.Start(ctx, name, trace.WithAttributes(attrs...))
}
