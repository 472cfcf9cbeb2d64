// Package mock provides a test double for the oracle.Provider interface.
//
// Responses are keyed by query text so that the transcript-side and
// translation-side lookups of one window can return different records.
//
// Example:
//
//	p := &mock.Provider{Responses: map[string]oracle.Response{
//	    "Roma es bonita": {"Roma": {{URI: "http://kb/Q220", Translation: map[string][]string{"ENG": {"Rome"}}}}},
//	}}
package mock

import (
	"context"
	"sync"

	"github.com/hlt-mt/smarterp/internal/oracle"
)

// LookupCall records a single invocation of Lookup.
type LookupCall struct {
	Query   string
	SrcLang string
	TgtLang string
}

// Provider is a mock implementation of oracle.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Responses maps a query to its response. Unknown queries return an empty
	// response.
	Responses map[string]oracle.Response

	// Err, if non-nil, is returned by every Lookup.
	Err error

	// --- Call records ---

	// Calls records every call to Lookup in order.
	Calls []LookupCall
}

var _ oracle.Provider = (*Provider)(nil)

// Lookup records the call and returns the canned response for query.
func (p *Provider) Lookup(_ context.Context, query, srcLang, tgtLang string) (oracle.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, LookupCall{Query: query, SrcLang: srcLang, TgtLang: tgtLang})
	if p.Err != nil {
		return nil, p.Err
	}
	if r, ok := p.Responses[query]; ok {
		return r, nil
	}
	return oracle.Response{}, nil
}

// CallCount returns the number of Lookup calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}
