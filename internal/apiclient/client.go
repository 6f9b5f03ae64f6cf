// Package apiclient is the single gateway for calls to the storefront REST
// API. It attaches credentials, refreshes an expired access token once per
// burst of failures, retries the failed call once and normalizes responses.
package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/eid-storefront/internal/config"
	"github.com/your-org/eid-storefront/internal/session"
	"golang.org/x/sync/singleflight"
)

// authEndpoint matches calls that must never trigger refresh-and-retry
var authEndpoint = regexp.MustCompile(`(?i)/auth/(login|register|refresh|logout)\b`)

const sessionReplacedMarker = "session expired due to new login"

// Client talks to the REST API on behalf of one session
type Client struct {
	baseURL     string
	refreshPath string
	http        *http.Client
	session     *session.Session
	log         logrus.FieldLogger

	refreshGroup singleflight.Group
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRefreshPath overrides the token refresh endpoint
func WithRefreshPath(path string) Option {
	return func(c *Client) { c.refreshPath = path }
}

// WithTimeout sets a per-request timeout on the default HTTP client
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// New creates a client for baseURL bound to sess
func New(baseURL string, sess *session.Session, log logrus.FieldLogger, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		refreshPath: "/auth/refresh",
		http:        &http.Client{Jar: sess.Jar()},
		session:     sess,
		log:         log.WithField("component", "apiclient"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig creates a client from the API section of cfg
func NewFromConfig(cfg *config.Config, sess *session.Session, log logrus.FieldLogger) *Client {
	return New(cfg.API.BaseURL, sess, log,
		WithRefreshPath(cfg.API.RefreshPath),
		WithTimeout(cfg.API.Timeout),
	)
}

// Get issues a GET request
func (c *Client) Get(ctx context.Context, endpoint string, opts ...RequestOption) (*Envelope, error) {
	return c.doJSON(ctx, newRequest(http.MethodGet, endpoint, opts))
}

// Post issues a POST request with a JSON payload
func (c *Client) Post(ctx context.Context, endpoint string, payload interface{}, opts ...RequestOption) (*Envelope, error) {
	return c.withBody(ctx, http.MethodPost, endpoint, payload, opts)
}

// Put issues a PUT request with a JSON payload
func (c *Client) Put(ctx context.Context, endpoint string, payload interface{}, opts ...RequestOption) (*Envelope, error) {
	return c.withBody(ctx, http.MethodPut, endpoint, payload, opts)
}

// Patch issues a PATCH request with a JSON payload
func (c *Client) Patch(ctx context.Context, endpoint string, payload interface{}, opts ...RequestOption) (*Envelope, error) {
	return c.withBody(ctx, http.MethodPatch, endpoint, payload, opts)
}

// Delete issues a DELETE request
func (c *Client) Delete(ctx context.Context, endpoint string, opts ...RequestOption) (*Envelope, error) {
	return c.doJSON(ctx, newRequest(http.MethodDelete, endpoint, opts))
}

func (c *Client) withBody(ctx context.Context, method, endpoint string, payload interface{}, opts []RequestOption) (*Envelope, error) {
	r := newRequest(method, endpoint, opts)
	if err := r.setJSONBody(payload); err != nil {
		return nil, err
	}
	return c.doJSON(ctx, r)
}

func (c *Client) doJSON(ctx context.Context, r *request) (*Envelope, error) {
	resp, err := c.execute(ctx, r)
	if err != nil {
		return nil, err
	}
	return normalize(resp)
}

// execute runs the authentication retry protocol and returns the final
// response with an unread body.
func (c *Client) execute(ctx context.Context, r *request) (*http.Response, error) {
	sent := c.session.AuthToken(ctx)
	resp, err := c.send(ctx, r, sent)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized || authEndpoint.MatchString("/"+strings.TrimLeft(r.endpoint, "/")) {
		return resp, nil
	}

	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	msg := errorMessage(bytes.TrimSpace(body))

	if strings.Contains(strings.ToLower(msg), sessionReplacedMarker) {
		c.invalidate(ctx, session.ReasonSessionReplaced)
		return nil, &AuthError{Reason: session.ReasonSessionReplaced, Message: msg}
	}

	// Another caller may have refreshed while this request was in flight.
	if current := c.session.AuthToken(ctx); current != "" && current != sent {
		return c.send(ctx, r, current)
	}

	token := c.refresh(ctx)
	if token == "" {
		if msg == "" {
			msg = statusMessage(resp)
		}
		c.invalidate(ctx, session.ReasonRefreshFailed)
		return nil, &AuthError{Reason: session.ReasonRefreshFailed, Message: msg}
	}

	return c.send(ctx, r, token)
}

// send builds and issues one HTTP request
func (c *Client) send(ctx context.Context, r *request, token string) (*http.Response, error) {
	target := joinURL(c.baseURL, r.endpoint)
	if len(r.query) > 0 {
		if q := encodeQuery(r.query); q != "" {
			sep := "?"
			if strings.Contains(target, "?") {
				sep = "&"
			}
			target += sep + q
		}
	}

	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
		if r.progress != nil {
			body = &progressReader{r: body, total: int64(len(r.body)), fn: r.progress}
		}
	}

	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if r.body != nil {
		req.ContentLength = int64(len(r.body))
	}

	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	} else if !r.multipart {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, vs := range r.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.WithFields(logrus.Fields{
			"method": r.method,
			"path":   r.endpoint,
		}).WithError(err).Warn("request failed")
		return nil, fmt.Errorf("%s %s: %w", r.method, r.endpoint, err)
	}

	c.log.WithFields(logrus.Fields{
		"method":  r.method,
		"path":    r.endpoint,
		"status":  resp.StatusCode,
		"latency": time.Since(start),
	}).Debug("request completed")

	return resp, nil
}

// invalidate drops the session after an unrecoverable auth failure
func (c *Client) invalidate(ctx context.Context, reason session.LogoutReason) {
	if err := c.session.Clear(ctx); err != nil {
		c.log.WithError(err).Warn("failed to clear credentials")
	}
	c.session.Broadcast(session.LogoutEvent{Reason: reason})
}
