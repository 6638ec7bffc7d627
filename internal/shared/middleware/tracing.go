package middleware

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const unmatchedRoute = "unmatched"

var (
	httpTracer = otel.Tracer("ledgersync/http")
	httpMeter  = otel.Meter("ledgersync/http")

	httpRequestDuration, _ = httpMeter.Float64Histogram("ledgersync.http.request.duration",
		metric.WithDescription("HTTP request duration by route"),
		metric.WithUnit("s"),
	)
	httpRequestTotal, _ = httpMeter.Int64Counter("ledgersync.http.requests",
		metric.WithDescription("HTTP requests by route and status"),
	)
)

// Tracing starts a server span per request and records count and duration per route.
// The route is the ServeMux pattern that matched ("POST /api/connections/{id}/sync"),
// so connection ids never become label values.
func Tracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := httpTracer.Start(r.Context(), r.Method,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
			),
		)
		defer span.End()

		if id, ok := RequestID(ctx); ok {
			span.SetAttributes(attribute.String("http.request_id", id))
		}

		start := time.Now()
		wrapped := wrapResponseWriter(w)
		// ServeMux records the matched pattern on the request it is handed.
		req := r.WithContext(ctx)
		next.ServeHTTP(wrapped, req)

		route := req.Pattern
		if route == "" {
			route = unmatchedRoute
		}
		status := wrapped.Status()

		span.SetName(route)
		span.SetAttributes(
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
		)
		if status >= 500 {
			span.SetStatus(codes.Error, http.StatusText(status))
		}

		attrs := metric.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
		)
		httpRequestDuration.Record(ctx, time.Since(start).Seconds(), attrs)
		httpRequestTotal.Add(ctx, 1, attrs)
	})
}
