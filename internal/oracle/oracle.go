// Package oracle is a client for the linked-data lookup service that maps
// entity surface forms to knowledge-base records and their translations.
//
// A lookup posts the untagged sentence together with the source and target
// languages. The service returns, for every surface form it recognised, the
// matching records:
//
//	{"result": {"translations": {"Roma": [{"uri": ".../Q220", "translation": {"ENG": ["Rome"]}}]}}}
//
// A response without a "translations" key means nothing was recognised.
//
// Endpoint failures (transport error, non-2xx status, undecodable body, or
// an open circuit) are reported as [*UnavailableError]. A language the
// service does not know is [ErrUnsupportedLanguage] and never reaches the
// network.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hlt-mt/smarterp/internal/observe"
)

// Record is one knowledge-base entry matched by a surface form.
type Record struct {
	URI string `json:"uri"`

	// Translation maps three-letter language codes to translated labels.
	Translation map[string][]string `json:"translation"`
}

// ID returns the last path segment of the record URI.
func (r Record) ID() string {
	if i := strings.LastIndexByte(r.URI, '/'); i >= 0 {
		return r.URI[i+1:]
	}
	return r.URI
}

// Response maps recognised surface forms to their records.
type Response map[string][]Record

// Provider performs lookups. [*Client] is the HTTP implementation.
type Provider interface {
	Lookup(ctx context.Context, query, srcLang, tgtLang string) (Response, error)
}

var _ Provider = (*Client)(nil)

// UnavailableError reports a failed lookup.
type UnavailableError struct {
	Endpoint   string
	StatusCode int // zero when no response was received
	Err        error
}

func (e *UnavailableError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("oracle: %s responded %d: %v", e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("oracle: %s unavailable: %v", e.Endpoint, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// ErrUnsupportedLanguage is returned by [Client.Lookup] for a language
// outside [LangCode].
var ErrUnsupportedLanguage = errors.New("oracle: unsupported language")

// IsEndpointFailure reports whether err says something about the health of
// the endpoint: an [*UnavailableError] not caused by the caller canceling.
func IsEndpointFailure(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue) && !errors.Is(err, context.Canceled)
}

var langCodes = map[string]string{
	"es": "SPA",
	"en": "ENG",
	"fr": "FRA",
	"it": "ITA",
	"de": "GER",
}

// LangCode returns the three-letter code the service uses for an ISO 639-1
// language.
func LangCode(iso string) (string, bool) {
	c, ok := langCodes[strings.ToLower(iso)]
	return c, ok
}

// Client queries a single oracle endpoint. It is safe for concurrent use.
type Client struct {
	name       string
	endpoint   string
	httpClient *http.Client
	metrics    *observe.Metrics
}

// Option is a functional option for [New].
type Option func(*Client)

// WithTimeout sets a per-request timeout. Zero means none.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithName sets the label used in logs and metrics. Default: the endpoint
// host.
func WithName(name string) Option {
	return func(c *Client) { c.name = name }
}

// WithHTTPClient replaces the instrumented default client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New returns a Client for endpoint, e.g. "http://10.0.0.5/api/".
func New(endpoint string, opts ...Option) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("oracle: invalid endpoint %q", endpoint)
	}
	c := &Client{
		name:       u.Host,
		endpoint:   endpoint,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c, nil
}

// Name returns the client's label.
func (c *Client) Name() string { return c.name }

type envelope struct {
	Result *struct {
		Translations Response `json:"translations"`
	} `json:"result"`
}

// Lookup posts query and returns the recognised surface forms. srcLang and
// tgtLang are ISO 639-1 codes.
func (c *Client) Lookup(ctx context.Context, query, srcLang, tgtLang string) (resp Response, err error) {
	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		c.metrics.OracleDuration.Record(ctx, time.Since(start).Seconds())
		c.metrics.RecordOracleRequest(ctx, c.name, status)
	}()

	in, ok := LangCode(srcLang)
	if !ok {
		return nil, fmt.Errorf("%w: source %q", ErrUnsupportedLanguage, srcLang)
	}
	out, ok := LangCode(tgtLang)
	if !ok {
		return nil, fmt.Errorf("%w: target %q", ErrUnsupportedLanguage, tgtLang)
	}

	form := url.Values{}
	form.Set("lang_in", in)
	form.Set("lang_out", out)
	form.Set("query", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("oracle: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UnavailableError{Endpoint: c.name, Err: err}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 8<<20))
	if err != nil {
		return nil, &UnavailableError{Endpoint: c.name, Err: fmt.Errorf("read body: %w", err)}
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, &UnavailableError{
			Endpoint:   c.name,
			StatusCode: httpResp.StatusCode,
			Err:        errors.New(strings.TrimSpace(string(body))),
		}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &UnavailableError{Endpoint: c.name, StatusCode: httpResp.StatusCode, Err: fmt.Errorf("decode body: %w", err)}
	}
	if env.Result == nil {
		return nil, &UnavailableError{Endpoint: c.name, StatusCode: httpResp.StatusCode, Err: errors.New(`response has no "result"`)}
	}
	if env.Result.Translations == nil {
		return Response{}, nil
	}
	return env.Result.Translations, nil
}
