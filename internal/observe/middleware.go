package observe

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// quietRoutes are polled by orchestrators and scrapers; they log at debug.
var quietRoutes = map[string]bool{
	"GET /healthz": true,
	"GET /readyz":  true,
	"GET /metrics": true,
}

// responseState records what the handler did with the connection. It
// forwards Hijack because the websocket upgrade of /ws takes the connection
// over.
type responseState struct {
	http.ResponseWriter
	status   int
	upgraded bool
}

func (s *responseState) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *responseState) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("observe: %T cannot be hijacked", s.ResponseWriter)
	}
	s.status, s.upgraded = http.StatusSwitchingProtocols, true
	return hj.Hijack()
}

// Middleware puts each request of the smarterp mux in a server span, sets
// X-Correlation-ID from the trace ID and logs the outcome.
//
// Spans, metrics and logs are labelled with the matched route pattern, so
// every /sessions/{id}/results lookup shares one series. A websocket
// session is one request: it is logged when the client goes away and is
// left out of [Metrics.HTTPRequestDuration], which times plain requests.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	var tc propagation.TraceContext

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ctx := tc.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := StartSpan(ctx, r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(semconv.HTTPRequestMethodKey.String(r.Method), semconv.URLPath(r.URL.Path)),
			)
			defer span.End()

			cid := CorrelationID(ctx)
			if cid != "" {
				w.Header().Set("X-Correlation-ID", cid)
			}

			// The mux records the matched pattern on the request it is given.
			r = r.WithContext(ctx)
			rs := &responseState{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rs, r)

			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			elapsed := time.Since(start)
			span.SetName(route)
			span.SetAttributes(semconv.HTTPRouteKey.String(route), semconv.HTTPResponseStatusCode(rs.status))

			attrs := []slog.Attr{
				slog.String("trace_id", cid),
				slog.String("route", route),
				slog.String("remote", r.RemoteAddr),
				slog.Duration("duration", elapsed),
			}
			if rs.upgraded {
				slog.LogAttrs(ctx, slog.LevelInfo, "websocket session closed", attrs...)
				return
			}

			m.HTTPRequestDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
				attribute.String("route", route),
				attribute.Int("status", rs.status),
			))
			level := slog.LevelInfo
			if quietRoutes[route] && rs.status < http.StatusInternalServerError {
				level = slog.LevelDebug
			}
			slog.LogAttrs(ctx, level, "request completed", append(attrs, slog.Int("status", rs.status))...)
		})
	}
}
