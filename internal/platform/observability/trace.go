package observability

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/GearConnect-Official/gearconnect-landing/internal/platform/requestctx"
)

const instrumentation = "github.com/GearConnect-Official/gearconnect-landing"

var propagator = propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})

// Tracer returns the tracer used for spans created by this module.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentation)
}

// TraceMiddleware continues an inbound W3C trace, starts a server span, and
// records the ids on the request context for logging.
func TraceMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := Tracer().Start(ctx, r.Method+" "+sanitizeRoute(r.URL.Path),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			sc := span.SpanContext()
			if sc.IsValid() {
				ctx = requestctx.WithTrace(ctx, requestctx.TraceInfo{
					TraceID: sc.TraceID().String(),
					SpanID:  sc.SpanID().String(),
					Sampled: sc.IsSampled(),
				})
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// InjectTrace writes the current trace context onto outbound headers.
func InjectTrace(ctx context.Context, header http.Header) {
	propagator.Inject(ctx, propagation.HeaderCarrier(header))
}
