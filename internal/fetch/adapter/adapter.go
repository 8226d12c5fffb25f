// Package adapter implements the shared source-adapter engine.
//
// One engine wraps one external provider, described by a Profile strategy
// value. The engine owns the provider's rate-limit window, a strictly FIFO
// request queue drained by a single loop, and the retry policy. Callers get
// normalized response envelopes or classified failures; provider-native
// response shapes never escape this package.
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"marketfetch/internal/fetch/errlog"
	"marketfetch/internal/fetch/failure"
	"marketfetch/internal/fetch/metrics"
)

const (
	maxAttempts      = 3
	defaultQueueSize = 64
	defaultTimeout   = 15 * time.Second
	maxErrorBodyLen  = 512
)

// Doer abstracts the HTTP client for testing.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithCredential supplies the API credential explicitly, taking precedence
// over the profile's environment variable.
func WithCredential(credential string) Option {
	return func(a *Adapter) { a.credential = credential }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client Doer) Option {
	return func(a *Adapter) { a.client = client }
}

// WithErrorLog injects the shared failure log.
func WithErrorLog(log *errlog.Log) Option {
	return func(a *Adapter) { a.log = log }
}

// WithLogger replaces the default slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) { a.logger = logger }
}

// WithQueueSize sets the request queue capacity.
func WithQueueSize(n int) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.queueSize = n
		}
	}
}

// withClock overrides time for tests.
func withClock(now func() time.Time, sleep func(context.Context, time.Duration) error) Option {
	return func(a *Adapter) {
		a.now = now
		a.sleep = sleep
	}
}

type outcome struct {
	resp *Response
	err  error
}

type pending struct {
	ctx   context.Context
	req   Request
	reply chan outcome
}

// Adapter is the per-provider fetch engine. Construct with New; a nil or
// zero Adapter is not usable.
type Adapter struct {
	profile    Profile
	credential string
	client     Doer
	logger     *slog.Logger
	log        *errlog.Log
	queueSize  int

	window *RateLimitState
	queue  chan *pending
	done   chan struct{}
	close  sync.Once

	now   func() time.Time
	sleep func(context.Context, time.Duration) error

	mu          sync.Mutex
	inFlight    bool
	lastFailure string
}

// New builds an adapter for the given profile and starts its drain loop.
// Adapters whose profile requires a credential fail fast with a
// Configuration failure when none is supplied, from either an explicit
// option or the process environment. A misconfigured adapter must never be
// left in a callable state.
func New(profile Profile, opts ...Option) (*Adapter, error) {
	a := &Adapter{
		profile:   profile,
		logger:    slog.Default(),
		queueSize: defaultQueueSize,
		done:      make(chan struct{}),
		now:       time.Now,
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.credential == "" && profile.CredentialEnv != "" {
		a.credential = os.Getenv(profile.CredentialEnv)
	}
	if profile.CredentialEnv != "" && strings.TrimSpace(a.credential) == "" {
		f := failure.Configuration(profile.Name,
			fmt.Sprintf("missing credential (set %s)", profile.CredentialEnv))
		a.log.Append(errlog.Record{
			Provider: profile.Name,
			Category: f.Category,
			Message:  f.Message,
		})
		return nil, f
	}

	if a.client == nil {
		a.client = &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	a.window = newRateLimitState(profile.RequestsPerMinute, a.now())
	a.queue = make(chan *pending, a.queueSize)
	go a.drain()

	return a, nil
}

// SourceName returns the provider's documented display name.
func (a *Adapter) SourceName() string { return a.profile.Name }

// IsConfigured reports whether a usable credential is present. Keyless
// providers are always configured.
func (a *Adapter) IsConfigured() bool {
	return a.profile.CredentialEnv == "" || strings.TrimSpace(a.credential) != ""
}

// Close stops the drain loop. In-flight work finishes; queued requests that
// were not yet picked up are rejected on the next Fetch wait.
func (a *Adapter) Close() error {
	a.close.Do(func() { close(a.done) })
	return nil
}

// State reports the adapter's current condition for health endpoints.
type State struct {
	Name        string         `json:"name"`
	Configured  bool           `json:"configured"`
	QueueDepth  int            `json:"queue_depth"`
	InFlight    bool           `json:"in_flight"`
	Window      WindowSnapshot `json:"window"`
	LastFailure string         `json:"last_failure,omitempty"`
}

// State returns a point-in-time snapshot.
func (a *Adapter) State() State {
	a.mu.Lock()
	inFlight := a.inFlight
	last := a.lastFailure
	a.mu.Unlock()
	return State{
		Name:        a.profile.Name,
		Configured:  a.IsConfigured(),
		QueueDepth:  len(a.queue),
		InFlight:    inFlight,
		Window:      a.window.Snapshot(),
		LastFailure: last,
	}
}

// Fetch places the request on the FIFO queue and blocks until the drain
// loop resolves it. Concurrent callers are served strictly in arrival
// order; a failure for one queued request never blocks the requests behind
// it.
func (a *Adapter) Fetch(ctx context.Context, req Request) (*Response, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	p := &pending{ctx: ctx, req: req, reply: make(chan outcome, 1)}
	select {
	case a.queue <- p:
	case <-a.done:
		return nil, failure.Network(a.profile.Name, "adapter closed", nil)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case out := <-p.reply:
		return out.resp, out.err
	case <-ctx.Done():
		// The request itself runs to completion; only this caller's wait
		// is abandoned.
		return nil, ctx.Err()
	}
}

// drain is the single queue-drain loop. At most one transport call is in
// flight per adapter at any time.
func (a *Adapter) drain() {
	for {
		select {
		case <-a.done:
			return
		case p := <-a.queue:
			a.mu.Lock()
			a.inFlight = true
			a.mu.Unlock()

			resp, err := a.process(p.ctx, p.req)

			a.mu.Lock()
			a.inFlight = false
			a.mu.Unlock()

			p.reply <- outcome{resp: resp, err: err}
		}
	}
}

// process runs the retry cycle for one logical fetch: up to maxAttempts
// transport calls with exponential backoff (1s, 2s) between them. The
// rate-limit wait precedes each attempt and is never part of the backoff
// delay. Non-retryable failures propagate after the first attempt; retrying
// cannot change their outcome.
func (a *Adapter) process(ctx context.Context, req Request) (*Response, error) {
	name := a.profile.Name
	var last *failure.Failure

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := time.Duration(1<<(attempt-2)) * time.Second
			if last != nil && last.RetryAfter > delay {
				// Honor the longer provider-suggested wait.
				delay = last.RetryAfter
			}
			metrics.FetchRetries.WithLabelValues(name).Inc()
			a.logger.Debug("retrying fetch",
				"provider", name, "request_id", req.ID,
				"attempt", attempt, "delay", delay)
			if err := a.sleep(ctx, delay); err != nil {
				return nil, failure.Network(name, "retry wait aborted", err)
			}
		}

		waited, err := a.window.acquire(ctx, a.now, a.sleep)
		if waited {
			metrics.RateLimitWaits.WithLabelValues(name).Inc()
		}
		if err != nil {
			return nil, failure.Network(name, "rate-limit wait aborted", err)
		}

		resp, err := a.transport(ctx, req)
		if err == nil {
			return resp, nil
		}

		f := failure.As(err, name)
		a.record(req, f)
		if !f.Retryable {
			return nil, f
		}
		last = f
	}

	exhausted := failure.Exhausted(maxAttempts, last)
	a.mu.Lock()
	a.lastFailure = exhausted.Error()
	a.mu.Unlock()
	return nil, exhausted
}

// transport performs one outbound call and classifies its outcome.
func (a *Adapter) transport(ctx context.Context, req Request) (*Response, error) {
	name := a.profile.Name
	metrics.FetchAttempts.WithLabelValues(name).Inc()
	start := a.now()

	u, err := url.Parse(strings.TrimSuffix(a.profile.BaseURL, "/") + req.Endpoint)
	if err != nil {
		return nil, failure.Validation(name, fmt.Sprintf("bad endpoint %q: %v", req.Endpoint, err))
	}

	params := cloneValues(req.Params)
	headers := make(http.Header, len(req.Headers))
	for k, v := range req.Headers {
		headers[k] = append([]string(nil), v...)
	}
	if a.profile.Authorize != nil {
		a.profile.Authorize(params, headers, a.credential)
	}
	u.RawQuery = params.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, failure.Validation(name, fmt.Sprintf("create request: %v", err))
	}
	httpReq.Header = headers

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, failure.Network(name, fmt.Sprintf("transport: %v", err), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, failure.RateLimit(name, "rate limited (429)", retryAfter)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, failure.Network(name, fmt.Sprintf("read response: %v", err), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, failure.Network(name,
			fmt.Sprintf("http %d: %s", resp.StatusCode, truncate(body)), nil)
	}

	if !json.Valid(body) {
		return nil, failure.Validation(name, "response is not valid JSON")
	}

	if a.profile.ClassifySentinel != nil {
		if f := a.profile.ClassifySentinel(body); f != nil {
			if f.Provider == "" {
				f.Provider = name
			}
			return nil, f
		}
	}

	metrics.FetchLatency.WithLabelValues(name).Observe(a.now().Sub(start).Seconds())
	return &Response{
		Payload:    body,
		HTTPStatus: resp.StatusCode,
		Timestamp:  a.now(),
		Source:     name,
	}, nil
}

func (a *Adapter) record(req Request, f *failure.Failure) {
	metrics.FetchFailures.WithLabelValues(a.profile.Name, string(f.Category)).Inc()
	a.log.Append(errlog.Record{
		Provider: f.Provider,
		Category: f.Category,
		Message:  f.Message,
	})
	a.logger.Debug("fetch attempt failed",
		"provider", a.profile.Name, "request_id", req.ID,
		"category", string(f.Category), "error", f.Message)

	a.mu.Lock()
	a.lastFailure = f.Error()
	a.mu.Unlock()
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func truncate(body []byte) string {
	s := string(body)
	if len(s) > maxErrorBodyLen {
		return s[:maxErrorBodyLen] + "..."
	}
	return s
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
