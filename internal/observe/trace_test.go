package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// newTestTracerProvider returns a TracerProvider with an in-memory exporter
// for inspecting recorded spans.
func newTestTracerProvider(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, exp
}

// captureLogs redirects the default logger into a buffer for the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return &buf
}

func TestCorrelationID_EmptyByDefault(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID(background) = %q, want empty", got)
	}
}

func TestStartSpan_CreatesSpan(t *testing.T) {
	tp, exp := newTestTracerProvider(t)
	origTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(origTP) })

	ctx, span := StartSpan(context.Background(), "worker.submit")
	if cid := CorrelationID(ctx); len(cid) != 32 {
		t.Errorf("correlation ID = %q, want 32 hex chars", cid)
	}
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if spans[0].Name != "worker.submit" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "worker.submit")
	}
}

func TestSessionID_RoundTrip(t *testing.T) {
	ctx := WithSession(context.Background(), "sess-42")
	if got := SessionID(ctx); got != "sess-42" {
		t.Errorf("SessionID = %q, want %q", got, "sess-42")
	}
	if got := SessionID(context.Background()); got != "" {
		t.Errorf("SessionID(background) = %q, want empty", got)
	}
}

func TestLogger(t *testing.T) {
	tp, _ := newTestTracerProvider(t)

	tests := []struct {
		name    string
		ctx     func() context.Context
		want    []string
		notWant []string
	}{
		{
			name:    "no span no session",
			ctx:     context.Background,
			notWant: []string{"trace_id", "session_id"},
		},
		{
			name: "span only",
			ctx: func() context.Context {
				ctx, _ := tp.Tracer("test").Start(context.Background(), "log-test")
				return ctx
			},
			want:    []string{"trace_id=", "span_id="},
			notWant: []string{"session_id"},
		},
		{
			name: "span and session",
			ctx: func() context.Context {
				ctx, _ := tp.Tracer("test").Start(context.Background(), "log-test")
				return WithSession(ctx, "abc")
			},
			want: []string{"trace_id=", "session_id=abc"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureLogs(t)
			Logger(tt.ctx()).Info("test message")
			logged := buf.String()
			for _, w := range tt.want {
				if !strings.Contains(logged, w) {
					t.Errorf("log output missing %q, got: %s", w, logged)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(logged, w) {
					t.Errorf("log output should not contain %q, got: %s", w, logged)
				}
			}
		})
	}
}
