// Package fastpath replays the portal workflow as direct HTTP calls
// using a session token captured from an authenticated browser session.
// It covers the portal's JSON grid endpoints and calendar HTML forms,
// producing the same inventory and submission shapes as the page driver.
package fastpath

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/brightpath-ops/ebilling-cli/internal/model"
	"github.com/brightpath-ops/ebilling-cli/internal/resilience"
)

// Provider is one row of the provider selection grid.
type Provider struct {
	SPN  string `json:"spn"`
	Name string `json:"name"`
}

// Client defines the portal operations available over a captured session.
type Client interface {
	// ListProviders returns the provider selection grid.
	ListProviders(ctx context.Context) ([]Provider, error)
	// SelectProvider switches the server-side session to the given SPN.
	SelectProvider(ctx context.Context, spn string) error
	// InvoiceGrid returns the invoice search grid for the selected provider.
	InvoiceGrid(ctx context.Context) ([]model.InventoryItem, error)
	// InvoiceDetail returns the consumer lines of a multi-consumer invoice,
	// identified by the portal's opaque internal id.
	InvoiceDetail(ctx context.Context, internalID string) ([]model.InventoryItem, error)
	// OpenInvoice switches the server-side session to the invoice so the
	// calendar endpoints resolve against it.
	OpenInvoice(ctx context.Context, internalID string) error
	// FetchCalendar retrieves and parses the Days Attend form for a
	// consumer line.
	FetchCalendar(ctx context.Context, lineID string) (*ParsedForm, error)
	// SubmitCalendar posts the full form back and returns the totals the
	// portal displays afterwards.
	SubmitCalendar(ctx context.Context, form *ParsedForm) (*CalendarTotals, error)
}

// Option configures the fastpath client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithInsecureTLS skips certificate verification. The portal serves its
// grid endpoints from custom ports with certificates that do not match.
func WithInsecureTLS() Option {
	return func(c *httpClient) {
		c.http.Transport = &http.Transport{
			TLSClientConfig:     &tls.Config{InsecureSkipVerify: true},
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		}
	}
}

// WithRateLimit overrides the default request pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetryConfig overrides the transient-failure retry policy.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	baseURL string
	cookie  string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewClient creates a portal client over a captured session cookie. The
// cookie is the full name=value pair handed off by the browser session.
func NewClient(baseURL, cookie string, opts ...Option) Client {
	c := &httpClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		cookie:  cookie,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(4), 2),
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do executes one rate-limited, retried request and returns the body.
// Transient transport failures and retryable statuses go through the
// backoff policy; any other non-2xx status is terminal.
func (c *httpClient) do(ctx context.Context, req *http.Request) ([]byte, error) {
	req.Header.Set("Cookie", c.cookie)

	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		attempt := req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, eris.Wrap(err, "fastpath: rewind request body")
			}
			attempt.Body = body
		}

		resp, err := c.http.Do(attempt)
		if err != nil {
			return nil, err
		}
		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, eris.Wrap(readErr, "fastpath: read response body")
		}

		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, &resilience.TransientError{
				Err:    eris.Errorf("fastpath: status %d", resp.StatusCode),
				Reason: resilience.ReasonConnectionError,
			}
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, eris.Errorf("fastpath: status %d: %s", resp.StatusCode, truncate(body))
		}
		return body, nil
	})
}

func truncate(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}

func (c *httpClient) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fastpath: create request")
	}
	req.Header.Set("Accept", "application/json, text/html")
	return c.do(ctx, req)
}

func (c *httpClient) postForm(ctx context.Context, path string, form url.Values) ([]byte, error) {
	encoded := form.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path,
		bytes.NewReader([]byte(encoded)))
	if err != nil {
		return nil, eris.Wrap(err, "fastpath: create request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(ctx, req)
}

// gridResponse is the envelope the portal's JSON grid endpoints share.
type gridResponse[T any] struct {
	Items []T `json:"items"`
}

func decodeGrid[T any](body []byte) ([]T, error) {
	var resp gridResponse[T]
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "fastpath: unmarshal grid response")
	}
	return resp.Items, nil
}
