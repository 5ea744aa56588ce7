// Package transport performs HTTP calls against the gateway and the generation
// service with a shared bounded retry policy.
//
// Network failures, timeouts, 429 and 5xx responses are retried; a 429 carrying
// Retry-After waits for the hinted delay, everything else waits
// BackoffBase^attempt seconds. Other 4xx responses are returned at once.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/tinyland-inc/zumo/pkg/logger"
)

const maxBodyBytes = 4 << 20

// Policy bounds a retry sequence.
type Policy struct {
	MaxAttempts int
	BackoffBase float64 // seconds; the wait after attempt n is BackoffBase^n
	MaxBackoff  time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BackoffBase: 2.0,
		MaxBackoff:  30 * time.Second,
	}
}

// Backoff returns the wait after the given failed attempt (1-based).
func (p Policy) Backoff(attempt int) time.Duration {
	base := p.BackoffBase
	if base <= 0 {
		base = DefaultPolicy().BackoffBase
	}
	wait := time.Duration(math.Pow(base, float64(attempt)) * float64(time.Second))
	if p.MaxBackoff > 0 && wait > p.MaxBackoff {
		wait = p.MaxBackoff
	}
	return wait
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

type Client struct {
	baseURL string
	inner   http.RoundTripper
	policy  Policy
	timeout time.Duration
	header  http.Header
	sleep   SleepFunc
	rc      *retryablehttp.Client
}

type Option func(*Client)

func WithPolicy(p Policy) Option {
	return func(c *Client) {
		if p.MaxAttempts <= 0 {
			p.MaxAttempts = 1
		}
		c.policy = p
	}
}

// WithTimeout bounds each individual attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithHeader(key, value string) Option {
	return func(c *Client) {
		if value != "" {
			c.header.Set(key, value)
		}
	}
}

func WithRoundTripper(rt http.RoundTripper) Option {
	return func(c *Client) { c.inner = rt }
}

// WithSleep takes over the wait between attempts. The retry loop itself then
// continues immediately once fn returns.
func WithSleep(fn SleepFunc) Option {
	return func(c *Client) { c.sleep = fn }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		inner:   http.DefaultTransport,
		policy:  DefaultPolicy(),
		timeout: 15 * time.Second,
		header:  make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{Transport: c.inner, Timeout: c.timeout}
	rc.Logger = nil
	rc.RetryMax = max(c.policy.MaxAttempts-1, 0)
	rc.RetryWaitMax = c.policy.MaxBackoff
	rc.CheckRetry = checkRetry
	rc.Backoff = c.backoff
	rc.ErrorHandler = wrapError
	rc.RequestLogHook = countAttempt
	c.rc = rc
	return c
}

func (c *Client) Policy() Policy {
	return c.policy
}

// Get fetches path and returns the raw JSON body of a 2xx response.
func (c *Client) Get(ctx context.Context, path string) (json.RawMessage, error) {
	body, err := c.execute(ctx, http.MethodGet, path, nil, isSuccess)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// Post sends body as JSON to path. Only 200 and 201 count as delivered.
func (c *Client) Post(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request body: %w", err)
	}
	_, err = c.execute(ctx, http.MethodPost, path, payload, isDelivered)
	return err
}

// HTTPClient returns an *http.Client whose transport applies this client's
// retry policy, for SDKs that issue their own requests. Configure those SDKs
// with their internal retries disabled. The final response is handed back
// as-is so the SDK can decode its own API error.
func (c *Client) HTTPClient() *http.Client {
	return c.rc.StandardClient()
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func isDelivered(status int) bool {
	return status == http.StatusOK || status == http.StatusCreated
}

type attemptsKey struct{}

// execute runs one call under the retry policy and drains the final body.
func (c *Client) execute(ctx context.Context, method, path string, payload []byte, accept func(int) bool) ([]byte, error) {
	attempts := 0
	ctx = context.WithValue(ctx, attemptsKey{}, &attempts)

	var raw any
	if payload != nil {
		raw = payload
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, raw)
	if err != nil {
		return nil, fmt.Errorf("building %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	describe := func(terr *Error) *Error {
		terr.Method = method
		terr.URL = path
		terr.Attempts = max(attempts, 1)
		return terr
	}

	resp, err := c.rc.Do(req)
	if err != nil {
		var terr *Error
		if !errors.As(err, &terr) {
			terr = &Error{Kind: classifyNetErr(err), Err: err}
		}
		return nil, describe(terr)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, describe(&Error{Kind: classifyNetErr(err), Err: err})
	}
	if accept(resp.StatusCode) {
		return body, nil
	}

	kind := kindForStatus(resp.StatusCode)
	if isSuccess(resp.StatusCode) {
		kind = KindUnexpectedStatus
	}
	return nil, describe(&Error{
		Kind:       kind,
		StatusCode: resp.StatusCode,
		Body:       truncate(string(body), 512),
	})
}

func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500, nil
}

// backoff follows the policy schedule, deferring to Retry-After on 429.
func (c *Client) backoff(_, _ time.Duration, attemptNum int, resp *http.Response) time.Duration {
	wait := c.policy.Backoff(attemptNum + 1)
	if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
		if hint := parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()); hint > 0 {
			wait = hint
		}
	}
	if c.sleep == nil {
		return wait
	}

	ctx := context.Background()
	if resp != nil && resp.Request != nil {
		ctx = resp.Request.Context()
	}
	_ = c.sleep(ctx, wait)
	return 0
}

func countAttempt(_ retryablehttp.Logger, req *http.Request, attemptNum int) {
	if n, ok := req.Context().Value(attemptsKey{}).(*int); ok {
		*n = attemptNum + 1
	}
	if attemptNum > 0 {
		logger.DebugCF("transport", "Retrying request", map[string]any{
			"method":  req.Method,
			"host":    req.URL.Host,
			"attempt": attemptNum + 1,
		})
	}
}

// wrapError turns a failed round trip into an *Error. Exhausted retries on a
// status pass the last response through unchanged.
func wrapError(resp *http.Response, err error, numTries int) (*http.Response, error) {
	if err == nil {
		return resp, nil
	}
	if resp != nil {
		resp.Body.Close()
	}
	return nil, &Error{Kind: classifyNetErr(err), Attempts: numTries, Err: err}
}

func classifyNetErr(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindNetwork
}

// parseRetryAfter accepts delay-seconds or an HTTP-date. Zero means no usable hint.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
