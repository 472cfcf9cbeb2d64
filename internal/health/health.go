// Package health provides HTTP health and readiness check handlers.
//
// The package exposes two endpoints:
//
//   - /healthz: liveness probe; always returns 200 OK.
//   - /readyz: readiness probe; returns 200 only when all registered
//     [Checker] functions pass.
//
// Responses are JSON objects with a top-level "status" field ("ok" or "fail")
// and a "checks" map containing the result of each named checker.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hlt-mt/smarterp/internal/resilience"
)

// checkTimeout is the maximum time a single readiness check may take before
// the context is cancelled.
const checkTimeout = 5 * time.Second

// Checker is a named health check function. The Check function should return
// nil when the dependency is healthy and a non-nil error describing the
// failure otherwise.
type Checker struct {
	// Name is a short label for this check (e.g. "worker", "store"). It
	// appears as a key in the JSON response.
	Name string

	// Check probes the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error
}

// Liveness is implemented by the worker bridge.
type Liveness interface {
	Alive() bool
}

// Pinger is implemented by result stores.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ErrWorkerDown is reported by [WorkerChecker] when the worker process has
// exited.
var ErrWorkerDown = errors.New("worker process is not running")

// WorkerChecker fails once the worker process has exited.
func WorkerChecker(w Liveness) Checker {
	return Checker{Name: "worker", Check: func(context.Context) error {
		if !w.Alive() {
			return ErrWorkerDown
		}
		return nil
	}}
}

// StoreChecker pings the result store.
func StoreChecker(p Pinger) Checker {
	return Checker{Name: "store", Check: p.Ping}
}

// BreakerStates is implemented by [*resilience.OracleFallback].
type BreakerStates interface {
	States() map[string]resilience.State
}

// BreakerChecker fails while every circuit breaker of b is open. A single
// usable endpoint is enough for lookups to succeed.
func BreakerChecker(name string, b BreakerStates) Checker {
	return Checker{Name: name, Check: func(context.Context) error {
		st := b.States()
		for _, s := range st {
			if s != resilience.StateOpen {
				return nil
			}
		}
		if len(st) == 0 {
			return nil
		}
		return fmt.Errorf("all %d endpoints have open circuit breakers", len(st))
	}}
}

// result is the JSON response body for health endpoints.
type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz endpoints. It is safe for concurrent
// use; the checker list is fixed at construction time.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] that evaluates the given checkers on each /readyz
// request.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Healthz is a liveness probe that always returns 200 OK. A running process
// that can serve HTTP is considered alive.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz is a readiness probe that returns 200 only when every registered
// [Checker] passes. Checkers run concurrently, each with a [checkTimeout]
// deadline derived from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	errs := make([]error, len(h.checkers))
	var wg sync.WaitGroup
	for i, c := range h.checkers {
		wg.Go(func() {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			errs[i] = c.Check(ctx)
		})
	}
	wg.Wait()

	res := result{
		Status: "ok",
		Checks: make(map[string]string, len(h.checkers)),
	}
	status := http.StatusOK
	for i, c := range h.checkers {
		if errs[i] != nil {
			res.Checks[c.Name] = "fail: " + errs[i].Error()
			res.Status = "fail"
			status = http.StatusServiceUnavailable
		} else {
			res.Checks[c.Name] = "ok"
		}
	}

	writeJSON(w, status, res)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// writeJSON encodes v as JSON and writes it with the given status code. On
// encoding failure it falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
