package resilience

import (
	"context"
	"errors"

	"github.com/hlt-mt/smarterp/internal/oracle"
)

// OracleFallback looks entities up against the first healthy oracle
// endpoint. Each endpoint has its own circuit breaker.
type OracleFallback struct {
	group *FallbackGroup[oracle.Provider]
}

var _ oracle.Provider = (*OracleFallback)(nil)

// NewOracleFallback creates an [OracleFallback] with primary as the preferred
// endpoint. Only [oracle.IsEndpointFailure] errors trip a breaker, so one
// session asking for an unknown language cannot open the circuit for all.
func NewOracleFallback(primary oracle.Provider, primaryName string, cfg FallbackConfig) *OracleFallback {
	cfg.CircuitBreaker.IsFailure = oracle.IsEndpointFailure
	return &OracleFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional endpoint.
func (f *OracleFallback) AddFallback(name string, p oracle.Provider) {
	f.group.AddFallback(name, p)
}

// States reports the breaker state of every endpoint.
func (f *OracleFallback) States() map[string]State { return f.group.States() }

// Lookup queries the endpoints in order. When all of them fail the error is
// an [*oracle.UnavailableError] that also matches [ErrAllFailed]. Errors that
// are not endpoint failures, such as [oracle.ErrUnsupportedLanguage] or the
// caller's own context error, are returned as is.
func (f *OracleFallback) Lookup(ctx context.Context, query, srcLang, tgtLang string) (oracle.Response, error) {
	resp, err := ExecuteWithResult(f.group, func(p oracle.Provider) (oracle.Response, error) {
		resp, err := p.Lookup(ctx, query, srcLang, tgtLang)
		if err != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return resp, err
	})
	if errors.Is(err, ErrAllFailed) {
		return nil, &oracle.UnavailableError{Endpoint: "all", Err: err}
	}
	return resp, err
}
