package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/osmno/geocode2osm/internal/resilience"
)

// DefaultUserAgent identifies the tool to the public services.
const DefaultUserAgent = "osm-no/geocode2osm"

// ClientOption configures the HTTP side of a provider.
type ClientOption func(*client)

// WithHTTPClient sets the HTTP client used for every request.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *client) {
		c.httpClient = hc
	}
}

// WithBaseURL overrides the service root, e.g. for a mirror.
func WithBaseURL(base string) ClientOption {
	return func(c *client) {
		if base != "" {
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithRetry sets the retry policy for busy or unreachable services.
func WithRetry(cfg resilience.RetryConfig) ClientOption {
	return func(c *client) {
		c.retry = cfg
	}
}

// WithBreaker guards the provider with a circuit breaker. While it is open
// the provider reports itself unavailable.
func WithBreaker(cb *resilience.CircuitBreaker) ClientOption {
	return func(c *client) {
		c.breaker = cb
	}
}

// client is the JSON-over-HTTP plumbing shared by every provider.
type client struct {
	name       string
	baseURL    string
	userAgent  string
	httpClient *http.Client
	retry      resilience.RetryConfig
	breaker    *resilience.CircuitBreaker

	// before runs ahead of every HTTP attempt, retries included.
	before func(ctx context.Context) error

	calls atomic.Int64
}

func newClient(name, baseURL string, opts []ClientOption) client {
	c := client{
		name:       name,
		baseURL:    baseURL,
		userAgent:  DefaultUserAgent,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retry:      resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.RetryLogger(name)
	}
	return c
}

// Name implements Provider.
func (c *client) Name() string { return c.name }

// Available implements Provider.
func (c *client) Available() bool {
	return c.breaker == nil || c.breaker.Allows()
}

// Calls returns the number of HTTP requests sent, retries included.
func (c *client) Calls() int64 { return c.calls.Load() }

// Circuit returns the breaker state, closed when there is no breaker.
func (c *client) Circuit() resilience.CircuitState {
	if c.breaker == nil {
		return resilience.CircuitClosed
	}
	return c.breaker.State()
}

// getJSON fetches path with params and decodes the JSON body into out.
// Every failure comes back as a *BackendError.
func (c *client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	rawURL := c.baseURL + path
	if len(params) > 0 {
		rawURL += "?" + params.Encode()
	}

	call := func(ctx context.Context) error {
		return resilience.Do(ctx, c.retry, func(ctx context.Context) error {
			return c.fetch(ctx, rawURL, out)
		})
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(ctx, call)
	} else {
		err = call(ctx)
	}
	if err == nil {
		return nil
	}

	kind := KindUnavailable
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		kind = KindBadResponse
	}
	zap.L().Debug("geocode: backend call failed",
		zap.String("backend", c.name),
		zap.String("url", rawURL),
		zap.Error(err),
	)
	return &BackendError{Backend: c.name, Kind: kind, Err: err}
}

func (c *client) fetch(ctx context.Context, rawURL string, out any) error {
	if c.before != nil {
		if err := c.before(ctx); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return eris.Wrapf(err, "%s: build request", strings.ToLower(c.name))
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	c.calls.Add(1)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return eris.Wrapf(err, "%s: request", strings.ToLower(c.name))
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return resilience.StatusError(strings.ToLower(c.name), resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrapf(err, "%s: read body", strings.ToLower(c.name))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrapf(err, "%s: parse response", strings.ToLower(c.name))
	}
	return nil
}
