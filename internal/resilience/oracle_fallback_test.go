package resilience

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/hlt-mt/smarterp/internal/observe"
	"github.com/hlt-mt/smarterp/internal/oracle"
	oraclemock "github.com/hlt-mt/smarterp/internal/oracle/mock"
)

func TestOracleFallback_Lookup(t *testing.T) {
	want := oracle.Response{"Roma": {{URI: "http://kb/Q220"}}}

	t.Run("primary answers", func(t *testing.T) {
		primary := &oraclemock.Provider{Responses: map[string]oracle.Response{"q": want}}
		secondary := &oraclemock.Provider{}
		fb := NewOracleFallback(primary, "primary", FallbackConfig{})
		fb.AddFallback("secondary", secondary)

		got, err := fb.Lookup(context.Background(), "q", "it", "en")
		if err != nil {
			t.Fatalf("Lookup: %v", err)
		}
		if len(got["Roma"]) != 1 {
			t.Errorf("response = %v", got)
		}
		if secondary.CallCount() != 0 {
			t.Errorf("secondary called %d times, want 0", secondary.CallCount())
		}
	})

	t.Run("failover", func(t *testing.T) {
		primary := &oraclemock.Provider{Err: &oracle.UnavailableError{Endpoint: "primary", StatusCode: 503}}
		secondary := &oraclemock.Provider{Responses: map[string]oracle.Response{"q": want}}
		fb := NewOracleFallback(primary, "primary", FallbackConfig{})
		fb.AddFallback("secondary", secondary)

		got, err := fb.Lookup(context.Background(), "q", "it", "en")
		if err != nil {
			t.Fatalf("Lookup: %v", err)
		}
		if len(got["Roma"]) != 1 {
			t.Errorf("response = %v", got)
		}
	})

	t.Run("all fail", func(t *testing.T) {
		primary := &oraclemock.Provider{Err: &oracle.UnavailableError{Endpoint: "primary", Err: errors.New("dial tcp: refused")}}
		fb := NewOracleFallback(primary, "primary", FallbackConfig{
			CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
		})

		_, err := fb.Lookup(context.Background(), "q", "it", "en")
		var ue *oracle.UnavailableError
		if !errors.As(err, &ue) {
			t.Fatalf("err = %v, want *oracle.UnavailableError", err)
		}
		if !errors.Is(err, ErrAllFailed) {
			t.Errorf("err = %v, want it to match ErrAllFailed", err)
		}
		if fb.States()["primary"] != StateOpen {
			t.Errorf("primary state = %v, want open", fb.States()["primary"])
		}

		_, err = fb.Lookup(context.Background(), "q", "it", "en")
		if !errors.Is(err, ErrCircuitOpen) {
			t.Errorf("second lookup err = %v, want ErrCircuitOpen", err)
		}
		if primary.CallCount() != 1 {
			t.Errorf("primary called %d times, want 1", primary.CallCount())
		}
	})
}

// newOracleClient returns a real client for an oracle that answers every
// request with an empty result.
func newOracleClient(t *testing.T, requests *atomic.Int32) *oracle.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		_, _ = io.WriteString(w, `{"result": {}}`)
	}))
	t.Cleanup(srv.Close)
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	c, err := oracle.New(srv.URL+"/api/", oracle.WithName("primary"), oracle.WithMetrics(m))
	if err != nil {
		t.Fatalf("oracle.New: %v", err)
	}
	return c
}

func TestOracleFallback_UnsupportedLanguageKeepsCircuitClosed(t *testing.T) {
	var requests atomic.Int32
	c := newOracleClient(t, &requests)
	fb := NewOracleFallback(c, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 5, ResetTimeout: time.Hour},
	})

	for i := range 5 {
		_, err := fb.Lookup(context.Background(), "Lisboa", "pt", "en")
		if !errors.Is(err, oracle.ErrUnsupportedLanguage) {
			t.Fatalf("lookup %d: err = %v, want ErrUnsupportedLanguage", i, err)
		}
		var ue *oracle.UnavailableError
		if errors.As(err, &ue) {
			t.Fatalf("lookup %d: err = %v, should not report the oracle unavailable", i, err)
		}
	}

	if _, err := fb.Lookup(context.Background(), "Roma es bonita", "es", "en"); err != nil {
		t.Fatalf("supported lookup after rejected ones: %v (states %v)", err, fb.States())
	}
	if st := fb.States()["primary"]; st != StateClosed {
		t.Errorf("primary state = %v, want closed", st)
	}
	if n := requests.Load(); n != 1 {
		t.Errorf("oracle saw %d requests, want 1", n)
	}
}

func TestOracleFallback_CanceledContextKeepsCircuitClosed(t *testing.T) {
	primary := &oraclemock.Provider{Err: &oracle.UnavailableError{Endpoint: "primary", Err: context.Canceled}}
	secondary := &oraclemock.Provider{}
	fb := NewOracleFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
	})
	fb.AddFallback("secondary", secondary)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for range 3 {
		_, err := fb.Lookup(ctx, "q", "it", "en")
		if !errors.Is(err, context.Canceled) || errors.Is(err, ErrAllFailed) {
			t.Fatalf("err = %v, want context.Canceled alone", err)
		}
	}
	if secondary.CallCount() != 0 {
		t.Errorf("secondary called %d times after cancel, want 0", secondary.CallCount())
	}
	for name, st := range fb.States() {
		if st != StateClosed {
			t.Errorf("%s state = %v, want closed", name, st)
		}
	}
}
