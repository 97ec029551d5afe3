package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	logx "alerticorn/pkg/logx"
)

const bodyPrefixMax = 512

var retriable = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooEarly:            true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Client is safe for concurrent use.
type Client struct {
	cfg   Config
	http  *http.Client
	log   logx.Logger
	sleep func(ctx context.Context, d time.Duration) error
	rand  func() float64
	now   func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	breaker  *breaker
}

type Option func(*Client)

// WithHTTPClient replaces the instrumented default client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithSleep replaces the backoff wait.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

// WithRand replaces the jitter source; fn returns values in [0,1).
func WithRand(fn func() float64) Option {
	return func(c *Client) {
		if fn != nil {
			c.rand = fn
		}
	}
}

func WithLogger(log logx.Logger) Option {
	return func(c *Client) { c.log = log }
}

func New(cfg Config, opts ...Option) *Client {
	cfg = cfg.withDefaults()
	c := &Client{
		cfg:      cfg,
		log:      logx.Nop(),
		sleep:    sleepCtx,
		rand:     rand.Float64,
		now:      time.Now,
		limiters: map[string]*rate.Limiter{},
		breaker:  newBreaker(cfg.BreakerTrip, cfg.BreakerCooldown),
	}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		c.http = newHTTPClient(cfg)
	}
	if c.log.IsZero() {
		c.log = logx.Nop()
	}
	return c
}

func newHTTPClient(cfg Config) *http.Client {
	base := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
	}
	return &http.Client{Transport: otelhttp.NewTransport(base)}
}

func (c *Client) Config() Config { return c.cfg }

// Send POSTs body to endpoint. Cancelling ctx aborts pacing and backoff
// waits but never a request already on the wire. While an endpoint's
// circuit is open Send fails without a request.
func (c *Client) Send(ctx context.Context, endpoint, contentType string, body []byte) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if open, until := c.breaker.open(endpoint, c.now()); open {
		return Result{}, &Error{Err: fmt.Errorf("%w until %s", ErrCircuitOpen, until.Format(time.RFC3339))}
	}
	res, err := c.send(ctx, endpoint, contentType, body)
	if err != nil && ctx.Err() != nil {
		// Abandoned by the caller; says nothing about the endpoint.
		return res, err
	}
	c.breaker.record(endpoint, c.now(), err == nil)
	if err != nil {
		if open, _ := c.breaker.open(endpoint, c.now()); open {
			c.log.Warn("webhook circuit opened", logx.String("host", endpointHost(endpoint)))
		}
	}
	return res, err
}

// OpenCircuits returns how many endpoints are currently skipped.
func (c *Client) OpenCircuits() int { return c.breaker.openCount(c.now()) }

func (c *Client) send(ctx context.Context, endpoint, contentType string, body []byte) (Result, error) {
	start := c.now()
	lim := c.limiter(endpoint)
	host := endpointHost(endpoint)

	var last *Error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return Result{}, &Error{Attempts: attempt - 1, Err: err}
			}
		}

		status, prefix, header, err := c.post(ctx, endpoint, contentType, body)
		switch {
		case err == nil && status >= 200 && status < 300:
			return Result{Status: status, Attempts: attempt, Elapsed: c.now().Sub(start)}, nil
		case err != nil:
			last = &Error{Attempts: attempt, Err: err}
		case !retriable[status]:
			return Result{}, &Error{Status: status, BodyPrefix: prefix, Attempts: attempt}
		default:
			last = &Error{Status: status, BodyPrefix: prefix, Attempts: attempt}
		}

		if attempt == c.cfg.MaxAttempts {
			break
		}
		wait, fromHeader := c.retryAfter(header)
		if !fromHeader {
			wait = c.Backoff(attempt)
		}
		c.log.Debug("webhook retry",
			logx.String("host", host),
			logx.Int("attempt", attempt),
			logx.Int("status", last.Status),
			logx.Duration("wait", wait),
			logx.Err(last.Err),
		)
		if err := c.sleep(ctx, wait); err != nil {
			return Result{}, last
		}
	}
	return Result{}, last
}

func (c *Client) post(ctx context.Context, endpoint, contentType string, body []byte) (int, string, http.Header, error) {
	// In-flight requests outlive engine shutdown; only the timeout bounds them.
	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.ConnectTimeout+c.cfg.ReadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, "", nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", "alerticorn")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, "", nil, err
	}
	defer resp.Body.Close()

	var prefix string
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, bodyPrefixMax))
		prefix = strings.TrimSpace(string(b))
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return resp.StatusCode, prefix, resp.Header, nil
}

// Backoff returns the wait after the given failed attempt:
// BackoffBase * 2^(attempt-1), scaled by the jitter.
func (c *Client) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := c.cfg.BackoffBase << (attempt - 1)
	if c.cfg.Jitter > 0 {
		f := 1 + c.cfg.Jitter*(2*c.rand()-1)
		d = time.Duration(float64(d) * f)
	}
	return d
}

// retryAfter parses the Retry-After header as seconds or an HTTP-date,
// capped at RetryAfterCap.
func (c *Client) retryAfter(h http.Header) (time.Duration, bool) {
	if h == nil {
		return 0, false
	}
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0, false
	}
	var d time.Duration
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		d = time.Duration(secs * float64(time.Second))
	} else if at, err := http.ParseTime(v); err == nil {
		d = at.Sub(c.now())
	} else {
		return 0, false
	}
	if d < 0 {
		d = 0
	}
	if d > c.cfg.RetryAfterCap {
		d = c.cfg.RetryAfterCap
	}
	return d, true
}

func (c *Client) limiter(endpoint string) *rate.Limiter {
	if c.cfg.RatePerSec < 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	lim, ok := c.limiters[endpoint]
	if !ok {
		burst := int(c.cfg.RatePerSec)
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(c.cfg.RatePerSec), burst)
		c.limiters[endpoint] = lim
	}
	return lim
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// endpointHost keeps webhook tokens out of logs.
func endpointHost(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return "invalid"
	}
	return u.Host
}

// IsStatus reports whether err is a transport Error with the given status.
func IsStatus(err error, status int) bool {
	var te *Error
	return errors.As(err, &te) && te.Status == status
}
