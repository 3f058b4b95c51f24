package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// DefaultTimeout bounds a single request. There are no retries.
const DefaultTimeout = 30 * time.Second

const userAgent = "chatterbox"

// Client wraps HTTP operations for the auth and messaging endpoints.
type Client struct {
	client      *http.Client
	timeout     time.Duration
	authURL     string
	messagesURL string
	log         zerolog.Logger
}

type Option func(*Client)

// WithHTTPClient sends requests through a copy of hc. hc itself is never
// modified.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithTimeout bounds each request, overriding any timeout of the client
// given to WithHTTPClient.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log.With().Str("component", "api").Logger() }
}

// NewClient creates a client for the given endpoint URLs.
func NewClient(authURL, messagesURL string, opts ...Option) *Client {
	c := &Client{
		authURL:     authURL,
		messagesURL: messagesURL,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	hc := &http.Client{Timeout: DefaultTimeout}
	if c.client != nil {
		copied := *c.client
		hc = &copied
	}
	if c.timeout > 0 {
		hc.Timeout = c.timeout
	}
	c.client = hc
	return c
}

// request describes one call against an endpoint.
type request struct {
	op       string
	method   string
	endpoint string
	query    url.Values
	token    string
	body     any
	// fallback is the user-facing message when the error body has none.
	fallback string
	// auth selects AuthError instead of RequestError on non-success.
	auth bool
}

// do sends the request and returns the response body of a 2xx response.
func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	target := r.endpoint
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}

	var reader io.Reader
	if r.body != nil {
		payload, err := json.Marshal(r.body)
		if err != nil {
			return nil, &RequestError{Op: r.op, Message: r.fallback, Err: fmt.Errorf("failed to marshal request: %w", err)}
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, r.method, target, reader)
	if err != nil {
		return nil, &RequestError{Op: r.op, Message: r.fallback, Err: fmt.Errorf("failed to create HTTP request: %w", err)}
	}
	requestID := uuid.NewString()
	httpReq.Header.Set("User-Agent", userAgent)
	httpReq.Header.Set("X-Request-Id", requestID)
	if r.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		httpReq.Header.Set("X-User-Token", r.token)
	}

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.log.Debug().Err(err).Str("op", r.op).Str("request_id", requestID).Msg("Request failed")
		return nil, &RequestError{Op: r.op, Message: r.fallback, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	c.log.Debug().
		Str("op", r.op).
		Str("request_id", requestID).
		Str("method", r.method).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("API request")
	if err != nil {
		return nil, &RequestError{Op: r.op, Status: resp.StatusCode, Message: r.fallback, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := errorMessage(body, r.fallback)
		if r.auth {
			return nil, &AuthError{Status: resp.StatusCode, Message: message}
		}
		return nil, &RequestError{Op: r.op, Status: resp.StatusCode, Message: message}
	}
	return body, nil
}

// errorMessage pulls the "error" field out of an error body.
func errorMessage(body []byte, fallback string) string {
	if !gjson.ValidBytes(body) {
		return fallback
	}
	if msg := gjson.GetBytes(body, "error").String(); msg != "" {
		return msg
	}
	return fallback
}

func decode(op string, body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return &RequestError{Op: op, Message: "Malformed response", Err: err}
	}
	return nil
}
