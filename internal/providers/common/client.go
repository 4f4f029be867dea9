package common

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

const (
	DefaultUserAgent    = "partsearch/1.0"
	defaultMaxBodyBytes = 4 * 1024 * 1024
	errorBodyLimit      = 512
)

var ErrEmptyCredentials = errors.New("provider credentials are not configured")

// HTTPError is a non-2xx reply from a provider endpoint.
type HTTPError struct {
	Provider string
	Status   int
	Body     string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s HTTP %d", e.Provider, e.Status)
	}
	return fmt.Sprintf("%s HTTP %d: %s", e.Provider, e.Status, e.Body)
}

// IsStatus reports whether err wraps an HTTPError with the given status.
func IsStatus(err error, status int) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.Status == status
}

// APIError is an error the provider reported inside a successful reply.
type APIError struct {
	Provider string
	Message  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error: %s", e.Provider, e.Message)
}

// NewHTTPClient returns a client whose transport is traced with otelhttp.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

type ClientConfig struct {
	Provider      string
	HTTPClient    *http.Client
	UserAgent     string
	RatePerSecond float64
	Burst         int
	Retry         *RetryConfig
	MaxBodyBytes  int64
}

// Client is the outbound HTTP path shared by provider clients: user agent,
// rate limiting, bounded body reads and retry of transient failures.
type Client struct {
	provider     string
	http         *http.Client
	userAgent    string
	limiter      *rate.Limiter
	retry        RetryConfig
	maxBodyBytes int64
}

type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = NewHTTPClient(0)
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	retry := DefaultRetryConfig()
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return &Client{
		provider:     cfg.Provider,
		http:         httpClient,
		userAgent:    userAgent,
		limiter:      limiter,
		retry:        retry,
		maxBodyBytes: maxBody,
	}
}

func (c *Client) Provider() string {
	return c.provider
}

// Do sends the request built by newRequest, rebuilding it for each retry
// attempt. Non-2xx replies are returned as *HTTPError.
func (c *Client) Do(ctx context.Context, newRequest func(context.Context) (*http.Request, error)) (Response, error) {
	var out Response
	err := RetryWithBackoff(ctx, c.retry, func() error {
		resp, err := c.doOnce(ctx, newRequest)
		if err != nil {
			return err
		}
		out = resp
		return nil
	})
	return out, err
}

func (c *Client) doOnce(ctx context.Context, newRequest func(context.Context) (*http.Request, error)) (Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Response{}, fmt.Errorf("%s rate limit wait: %w", c.provider, err)
		}
	}
	req, err := newRequest(ctx)
	if err != nil {
		return Response{}, err
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes))
	if err != nil {
		return Response{}, fmt.Errorf("%s read body: %w", c.provider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Response{}, &HTTPError{
			Provider: c.provider,
			Status:   resp.StatusCode,
			Body:     Truncate(strings.TrimSpace(string(body)), errorBodyLimit),
		}
	}
	return Response{Status: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// GetJSON issues a GET and decodes the JSON reply into out.
func (c *Client) GetJSON(ctx context.Context, endpoint string, header http.Header, out any) error {
	resp, err := c.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		copyHeader(req.Header, header)
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return err
	}
	return c.decode(resp.Body, out)
}

// PostJSON encodes payload as JSON, posts it and decodes the reply into out.
func (c *Client) PostJSON(ctx context.Context, endpoint string, header http.Header, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s encode request: %w", c.provider, err)
	}
	resp, err := c.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		copyHeader(req.Header, header)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return err
	}
	return c.decode(resp.Body, out)
}

// PostForm posts an url-encoded body and decodes the JSON reply into out.
func (c *Client) PostForm(ctx context.Context, endpoint string, header http.Header, form string, out any) error {
	resp, err := c.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form))
		if err != nil {
			return nil, err
		}
		copyHeader(req.Header, header)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return err
	}
	return c.decode(resp.Body, out)
}

func (c *Client) decode(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s decode response: %w", c.provider, err)
	}
	return nil
}

func copyHeader(dst, src http.Header) {
	for key, values := range src {
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}
