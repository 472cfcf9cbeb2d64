package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"
)

var errTest = errors.New("test error")

func fail() error    { return errTest }
func succeed() error { return nil }

// tripped returns a breaker that has just opened.
func tripped(t *testing.T, cfg CircuitBreakerConfig) *CircuitBreaker {
	t.Helper()
	cb := NewCircuitBreaker(cfg)
	for range cfg.MaxFailures {
		_ = cb.Execute(fail)
	}
	if cb.State() != StateOpen && cfg.ResetTimeout > time.Second {
		t.Fatalf("state = %v, want open", cb.State())
	}
	return cb
}

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "kb.example.org"})
	c := cb.cfg
	if c.MaxFailures != 5 || c.ResetTimeout != 30*time.Second || c.HalfOpenMax != 3 {
		t.Errorf("defaults = (%d, %v, %d), want (5, 30s, 3)", c.MaxFailures, c.ResetTimeout, c.HalfOpenMax)
	}
	if cb.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", cb.State())
	}
	if !cb.IsFailure(errTest) || cb.IsFailure(nil) {
		t.Error("default classifier should count every non-nil error")
	}
}

func TestCircuitBreaker_ClosedTransitions(t *testing.T) {
	tests := []struct {
		name  string
		calls []func() error
		want  State
	}{
		{"success stays closed", []func() error{succeed, succeed}, StateClosed},
		{"below threshold", []func() error{fail, fail}, StateClosed},
		{"success resets count", []func() error{fail, fail, succeed, fail, fail}, StateClosed},
		{"threshold opens", []func() error{fail, fail, fail}, StateOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 3, ResetTimeout: time.Hour})
			for _, fn := range tt.calls {
				_ = cb.Execute(fn)
			}
			if got := cb.State(); got != tt.want {
				t.Errorf("state = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCircuitBreaker_OpenRejects(t *testing.T) {
	cb := tripped(t, CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour})

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("fn called while open")
	}
}

func TestCircuitBreaker_HalfOpen(t *testing.T) {
	cfg := CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: 10 * time.Millisecond, HalfOpenMax: 2}

	t.Run("reports half-open after timeout", func(t *testing.T) {
		cb := tripped(t, cfg)
		time.Sleep(15 * time.Millisecond)
		if cb.State() != StateHalfOpen {
			t.Fatalf("state = %v, want half-open", cb.State())
		}
	})

	t.Run("successful trials close", func(t *testing.T) {
		cb := tripped(t, cfg)
		time.Sleep(15 * time.Millisecond)
		for i := range 2 {
			if err := cb.Execute(succeed); err != nil {
				t.Fatalf("trial %d: %v", i, err)
			}
		}
		if cb.State() != StateClosed {
			t.Fatalf("state = %v, want closed", cb.State())
		}
	})

	t.Run("failed trial re-opens", func(t *testing.T) {
		cb := tripped(t, cfg)
		time.Sleep(15 * time.Millisecond)
		if err := cb.Execute(fail); err == nil {
			t.Fatal("expected error from failing trial")
		}
		cb.mu.Lock()
		s := cb.state
		cb.mu.Unlock()
		if s != StateOpen {
			t.Fatalf("state = %v, want open", s)
		}
	})
}

var errNeutral = errors.New("unsupported language")

func countable(err error) bool { return !errors.Is(err, errNeutral) }

func TestCircuitBreaker_Classifier(t *testing.T) {
	neutral := func() error { return errNeutral }

	t.Run("neutral errors do not open", func(t *testing.T) {
		cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour, IsFailure: countable})
		for range 10 {
			if err := cb.Execute(neutral); !errors.Is(err, errNeutral) {
				t.Fatalf("err = %v, want errNeutral passed through", err)
			}
		}
		if cb.State() != StateClosed {
			t.Fatalf("state = %v, want closed", cb.State())
		}
	})

	t.Run("neutral errors do not reset the count", func(t *testing.T) {
		cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour, IsFailure: countable})
		_ = cb.Execute(fail)
		_ = cb.Execute(neutral)
		_ = cb.Execute(fail)
		if cb.State() != StateOpen {
			t.Fatalf("state = %v, want open", cb.State())
		}
	})

	t.Run("neutral trial returns its slot", func(t *testing.T) {
		cb := tripped(t, CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: 10 * time.Millisecond, HalfOpenMax: 1, IsFailure: countable})
		time.Sleep(15 * time.Millisecond)
		if err := cb.Execute(neutral); !errors.Is(err, errNeutral) {
			t.Fatalf("neutral trial err = %v", err)
		}
		if err := cb.Execute(succeed); err != nil {
			t.Fatalf("second trial rejected: %v", err)
		}
		if cb.State() != StateClosed {
			t.Fatalf("state = %v, want closed", cb.State())
		}
	})
}

func TestCircuitBreaker_ConcurrentUse(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1000})
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Go(func() {
			if i%2 == 0 {
				_ = cb.Execute(fail)
			} else {
				_ = cb.Execute(succeed)
			}
		})
	}
	wg.Wait()
	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed", cb.State())
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
