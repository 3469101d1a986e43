package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"catapis/internal/logging"
)

// Error is the normalized failure shape produced for every outbound call,
// regardless of whether the transport failed or the upstream answered non-2xx.
type Error struct {
	Status  int // 0 when no response was received
	Method  string
	Path    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%d] %s %s -> %s", e.Status, e.Method, e.Path, e.Message)
}

// StatusOf returns the upstream status carried by err.
// 0 means no response was received or err is not a normalized upstream error.
func StatusOf(err error) int {
	var uerr *Error
	if errors.As(err, &uerr) {
		return uerr.Status
	}
	return 0
}

// RequestOptions carries per-call overrides. Owned by the call site,
// discarded after the call completes.
type RequestOptions struct {
	Headers map[string]string
	Query   url.Values
	Timeout time.Duration
	BaseURL string
}

// Options configures a Client at construction time.
type Options struct {
	BaseURL        string
	Timeout        time.Duration
	Retries        int
	RetryDelay     time.Duration
	DefaultHeaders map[string]string
}

// Client is a JSON-over-HTTP client with fixed-count retry and linear backoff.
// Retries happen only on transport failures and 5xx responses, never on 4xx.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	defaultHeaders map[string]string
	retries        int
	retryDelay     time.Duration
	logger         *logging.Logger
}

func NewClient(opts Options, logger *logging.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 250 * time.Millisecond
	}

	headers := map[string]string{
		"Content-Type": "application/json",
		"Accept":       "application/json",
	}
	for k, v := range opts.DefaultHeaders {
		headers[k] = v
	}

	return &Client{
		httpClient:     &http.Client{Timeout: timeout},
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		defaultHeaders: headers,
		retries:        opts.Retries,
		retryDelay:     retryDelay,
		logger:         logger,
	}
}

func (c *Client) Get(ctx context.Context, path string, opts *RequestOptions) ([]byte, error) {
	return c.send(ctx, http.MethodGet, path, nil, opts)
}

func (c *Client) Post(ctx context.Context, path string, body any, opts *RequestOptions) ([]byte, error) {
	return c.send(ctx, http.MethodPost, path, body, opts)
}

func (c *Client) Put(ctx context.Context, path string, body any, opts *RequestOptions) ([]byte, error) {
	return c.send(ctx, http.MethodPut, path, body, opts)
}

func (c *Client) Patch(ctx context.Context, path string, body any, opts *RequestOptions) ([]byte, error) {
	return c.send(ctx, http.MethodPatch, path, body, opts)
}

func (c *Client) Delete(ctx context.Context, path string, opts *RequestOptions) ([]byte, error) {
	return c.send(ctx, http.MethodDelete, path, nil, opts)
}

func (c *Client) send(ctx context.Context, method, path string, body any, opts *RequestOptions) ([]byte, error) {
	fullURL, err := c.resolveURL(path, opts)
	if err != nil {
		return nil, &Error{Status: 0, Method: method, Path: path, Message: err.Error()}
	}

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, &Error{Status: 0, Method: method, Path: path, Message: "failed to encode request body: " + err.Error()}
		}
	}

	var out []byte
	attemptErr := retry.Do(ctx, retry.WithMaxRetries(uint64(c.retries), c.linearBackoff()), func(ctx context.Context) error {
		respBody, err := c.attempt(ctx, method, path, fullURL, payload, opts)
		if err != nil {
			if isRetryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		out = respBody
		return nil
	})
	if attemptErr != nil {
		return nil, attemptErr
	}

	return out, nil
}

// attempt performs a single request and normalizes every failure into *Error.
func (c *Client) attempt(ctx context.Context, method, path, fullURL string, payload []byte, opts *RequestOptions) ([]byte, error) {
	if opts != nil && opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, &Error{Status: 0, Method: method, Path: path, Message: err.Error()}
	}

	for k, v := range c.defaultHeaders {
		req.Header.Set(k, v)
	}
	if opts != nil {
		for k, v := range opts.Headers {
			req.Header.Set(k, v)
		}
	}

	c.logger.Debug("outbound request", "method", method, "url", fullURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// No response at all: network failure or timeout
		return nil, &Error{Status: 0, Method: method, Path: path, Message: err.Error()}
	}
	defer resp.Body.Close()

	c.logger.Debug("outbound response", "status", resp.StatusCode, "url", fullURL)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Status: 0, Method: method, Path: path, Message: "failed to read response body: " + err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{
			Status:  resp.StatusCode,
			Method:  method,
			Path:    path,
			Message: messageFromBody(respBody),
		}
	}

	return respBody, nil
}

func (c *Client) resolveURL(path string, opts *RequestOptions) (string, error) {
	base := c.baseURL
	if opts != nil && opts.BaseURL != "" {
		base = strings.TrimRight(opts.BaseURL, "/")
	}

	u, err := url.Parse(base + path)
	if err != nil {
		return "", err
	}

	if opts != nil && len(opts.Query) > 0 {
		q := u.Query()
		for key, values := range opts.Query {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

// linearBackoff waits retryDelay * attemptNumber between attempts.
func (c *Client) linearBackoff() retry.Backoff {
	attempt := 0
	return retry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		return c.retryDelay * time.Duration(attempt), false
	})
}

// isRetryable reports whether the failure may be retried:
// no response at all, or a 5xx status. 4xx is never retried.
func isRetryable(err error) bool {
	var uerr *Error
	if !errors.As(err, &uerr) {
		return false
	}
	return uerr.Status == 0 || (uerr.Status >= 500 && uerr.Status <= 599)
}

// messageFromBody assembles the diagnostic message from an error response.
// Priority: plain string body, JSON "message" field, JSON "error" field.
func messageFromBody(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return "HTTP error"
	}

	// JSON-encoded string body
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil && s != "" {
			return s
		}
	}

	if trimmed[0] == '{' {
		var fields struct {
			Message any    `json:"message"`
			Error   string `json:"error"`
		}
		if err := json.Unmarshal(trimmed, &fields); err == nil {
			switch m := fields.Message.(type) {
			case string:
				if m != "" {
					return m
				}
			case []any:
				parts := make([]string, 0, len(m))
				for _, p := range m {
					if s, ok := p.(string); ok {
						parts = append(parts, s)
					}
				}
				if len(parts) > 0 {
					return strings.Join(parts, "; ")
				}
			}
			if fields.Error != "" {
				return fields.Error
			}
		}
		return "HTTP error"
	}

	if trimmed[0] == '[' {
		return "HTTP error"
	}

	// Raw text body
	return string(trimmed)
}
