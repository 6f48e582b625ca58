// Package pipeline issues HTTP requests against the resolved backend
// environment. Every call produces exactly one Outcome: transport errors,
// timeouts and bad statuses are normalized into the outcome instead of being
// returned as errors, so callers never need their own failure handling.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	glog "github.com/Laisky/go-utils/v5/log"
	"github.com/Laisky/zap"

	"github.com/devprobe/apidiag/classify"
	"github.com/devprobe/apidiag/common/config"
	"github.com/devprobe/apidiag/common/helper"
	"github.com/devprobe/apidiag/common/logger"
	"github.com/devprobe/apidiag/environment"
)

const maxResponseBodySize = 1 << 20 // 1 MiB

// SleepFunc pauses between retry attempts. It returns early with the context
// error when the context is cancelled.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Request describes one HTTP call. Path is joined onto the environment's
// base URL unless it is already an absolute URL.
type Request struct {
	Method  string
	Path    string
	Body    any
	Headers map[string]string
	Query   url.Values
}

// Outcome is the normalized result of one pipeline call. Retries are internal;
// callers always receive exactly one Outcome holding the final attempt.
type Outcome struct {
	Success  bool            `json:"success"`
	Status   int             `json:"status"`
	Body     json.RawMessage `json:"body,omitempty"`
	Kind     classify.Kind   `json:"errorKind"`
	Message  string          `json:"message"`
	Duration time.Duration   `json:"duration"`
}

// Client sends requests using one environment's settings. It is safe for
// concurrent use; the configuration is read-only after construction.
type Client struct {
	cfg    environment.Config
	origin string
	http   *http.Client
	sleep  SleepFunc
	logger glog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithSleep replaces the retry backoff sleeper. Tests inject a recorder here
// so retry timing can be asserted without real timers.
func WithSleep(sleep SleepFunc) Option {
	return func(c *Client) { c.sleep = sleep }
}

// WithLogger replaces the client logger.
func WithLogger(l glog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithOrigin sets the application origin used to judge whether a request is
// cross-origin. Defaults to the configured APP_ORIGIN.
func WithOrigin(origin string) Option {
	return func(c *Client) { c.origin = origin }
}

// New builds a pipeline client for the given environment.
func New(cfg environment.Config, opts ...Option) *Client {
	c := &Client{
		cfg:    cfg,
		origin: config.AppOrigin,
		http:   &http.Client{},
		sleep:  sleepWithContext,
		logger: logger.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the environment configuration the client was built with.
func (c *Client) Config() environment.Config {
	return c.cfg
}

// Do issues a single request. The call is bounded by the environment timeout;
// the cancellation is always released on both success and failure paths.
func (c *Client) Do(ctx context.Context, req Request) Outcome {
	start := time.Now()
	outcome := c.do(ctx, req)
	outcome.Duration = time.Since(start)

	if outcome.Success {
		c.logger.Debug("request completed",
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.Int("status", outcome.Status),
			zap.Int64("elapsed_ms", helper.CalcElapsedTime(start)),
		)
	} else {
		c.logger.Warn("request failed",
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.Int("status", outcome.Status),
			zap.String("kind", string(outcome.Kind)),
			zap.String("message", outcome.Message),
			zap.Int64("elapsed_ms", helper.CalcElapsedTime(start)),
		)
	}

	return outcome
}

func (c *Client) do(ctx context.Context, req Request) Outcome {
	endpoint, err := c.resolveURL(req)
	if err != nil {
		return Outcome{Kind: classify.KindNetwork, Message: fmt.Sprintf("resolve url: %v", err)}
	}

	body, contentType, err := encodeBody(req.Body)
	if err != nil {
		return Outcome{Kind: classify.KindParse, Message: fmt.Sprintf("encode request body: %v", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, endpoint, body)
	if err != nil {
		return Outcome{Kind: classify.KindNetwork, Message: fmt.Sprintf("build request: %v", err)}
	}

	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		// Binary and multipart payloads keep their transport-chosen content
		// type (boundary parameters included), so only JSON sets it here.
		httpReq.Header.Set("Content-Type", contentType)
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	crossOrigin := c.isCrossOrigin(httpReq.URL)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		kind := classify.Classify(err, nil, crossOrigin)
		return Outcome{Kind: kind, Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		wrapped := errors.Wrap(err, "read response body")
		kind := classify.Classify(wrapped, resp, crossOrigin)
		return Outcome{Status: resp.StatusCode, Kind: kind, Message: wrapped.Error()}
	}

	if resp.StatusCode >= 400 {
		kind := classify.Classify(nil, resp, crossOrigin)
		return Outcome{
			Status:  resp.StatusCode,
			Body:    rawJSON(raw),
			Kind:    kind,
			Message: fmt.Sprintf("status %s: %s", resp.Status, helper.Snippet(raw)),
		}
	}

	if len(raw) > 0 && !json.Valid(raw) {
		wrapped := errors.Wrap(classify.ErrDecode, helper.Snippet(raw))
		return Outcome{
			Status:  resp.StatusCode,
			Kind:    classify.Classify(wrapped, resp, crossOrigin),
			Message: wrapped.Error(),
		}
	}

	return Outcome{
		Success: true,
		Status:  resp.StatusCode,
		Body:    rawJSON(raw),
		Kind:    classify.KindNone,
	}
}

// DoWithRetry issues the request with the environment's attempt budget.
// Only network and timeout failures are retried; CORS and HTTP client errors
// are terminal. The delay before attempt k is 2^(k-2) seconds. The last
// attempt's outcome is returned.
func (c *Client) DoWithRetry(ctx context.Context, req Request) Outcome {
	attempts := c.cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var outcome Outcome
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := backoffDelay(attempt)
			c.logger.Info("retrying request",
				zap.String("method", req.Method),
				zap.String("path", req.Path),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
			)
			if err := c.sleep(ctx, delay); err != nil {
				return outcome
			}
		}

		outcome = c.Do(ctx, req)
		if outcome.Success || !classify.Retryable(outcome.Kind) {
			return outcome
		}
	}

	return outcome
}

// Get issues a GET request against a backend path.
func (c *Client) Get(ctx context.Context, path string, headers map[string]string) Outcome {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Headers: headers})
}

func (c *Client) resolveURL(req Request) (string, error) {
	raw := req.Path
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = strings.TrimSuffix(c.cfg.BaseURL, "/")
		if req.Path != "" && !strings.HasPrefix(req.Path, "/") {
			raw += "/"
		}
		raw += req.Path
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.Wrapf(err, "parse url %q", raw)
	}
	if len(req.Query) > 0 {
		q := u.Query()
		for key, values := range req.Query {
			for _, value := range values {
				q.Add(key, value)
			}
		}
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

// isCrossOrigin reports whether the target host differs from the application
// origin's host, which feeds the CORS classification heuristic. An empty or
// unparseable origin disables the heuristic.
func (c *Client) isCrossOrigin(target *url.URL) bool {
	if c.origin == "" {
		return false
	}
	origin, err := url.Parse(c.origin)
	if err != nil || origin.Host == "" {
		return false
	}
	return !strings.EqualFold(origin.Host, target.Host)
}

// encodeBody serializes the request body. JSON is the default; raw bytes and
// readers pass through untouched with no content type so multipart writers
// and binary uploads keep control of their own headers.
func encodeBody(body any) (io.Reader, string, error) {
	switch v := body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return bytes.NewReader(v), "", nil
	case io.Reader:
		return v, "", nil
	default:
		payload, err := json.Marshal(v)
		if err != nil {
			return nil, "", errors.Wrap(err, "marshal body")
		}
		return bytes.NewReader(payload), "application/json", nil
	}
}

// rawJSON returns the body bytes when they form valid JSON, otherwise nil.
func rawJSON(raw []byte) json.RawMessage {
	if len(raw) == 0 || !json.Valid(raw) {
		return nil
	}
	return json.RawMessage(raw)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
