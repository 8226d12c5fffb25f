package adapter

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"marketfetch/internal/fetch/failure"
)

func testProfile(rpm int) Profile {
	return Profile{
		Name:              "TestProvider",
		BaseURL:           "https://example.test/api",
		RequestsPerMinute: rpm,
		CredentialEnv:     "TEST_ADAPTER_KEY",
		Authorize: func(params url.Values, _ http.Header, credential string) {
			params.Set("apikey", credential)
		},
	}
}

// fakeClock drives the adapter's time without real sleeps. Sleeping
// advances the clock so rate-limit windows still roll over.
type fakeClock struct {
	mu     sync.Mutex
	t      time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) sleep(_ context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.t = c.t.Add(d)
	return nil
}

func (c *fakeClock) recorded() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

type fakeResponse struct {
	status int
	body   string
	header http.Header
	err    error
}

// scriptedDoer plays back responses in order, repeating the last one.
type scriptedDoer struct {
	mu        sync.Mutex
	responses []fakeResponse
	calls     int
	urls      []string
}

func (d *scriptedDoer) Do(req *http.Request) (*http.Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.calls
	if i >= len(d.responses) {
		i = len(d.responses) - 1
	}
	d.calls++
	d.urls = append(d.urls, req.URL.String())

	r := d.responses[i]
	if r.err != nil {
		return nil, r.err
	}
	header := r.header
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode: r.status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(r.body)),
	}, nil
}

func (d *scriptedDoer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func newTestAdapter(t *testing.T, doer Doer, clock *fakeClock, rpm int) *Adapter {
	t.Helper()
	a, err := New(testProfile(rpm),
		WithCredential("secret"),
		WithHTTPClient(doer),
		withClock(clock.now, clock.sleep),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestNewMissingCredential(t *testing.T) {
	t.Setenv("TEST_ADAPTER_KEY", "")
	_, err := New(testProfile(5))
	if err == nil {
		t.Fatal("expected configuration failure")
	}
	if failure.CategoryOf(err) != failure.CategoryConfiguration {
		t.Errorf("category = %s", failure.CategoryOf(err))
	}
	if failure.IsRetryable(err) {
		t.Error("configuration failures must not be retryable")
	}
}

func TestNewWhitespaceCredential(t *testing.T) {
	_, err := New(testProfile(5), WithCredential("   "))
	if failure.CategoryOf(err) != failure.CategoryConfiguration {
		t.Fatalf("whitespace credential accepted: %v", err)
	}
}

func TestKeylessProfileAlwaysConfigured(t *testing.T) {
	p := testProfile(5)
	p.CredentialEnv = ""
	p.Authorize = nil
	a, err := New(p, WithHTTPClient(&scriptedDoer{responses: []fakeResponse{{status: 200, body: "{}"}}}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()
	if !a.IsConfigured() {
		t.Error("keyless adapter should report configured")
	}
}

func TestFetchSuccess(t *testing.T) {
	doer := &scriptedDoer{responses: []fakeResponse{{status: 200, body: `{"ok":true}`}}}
	clock := newFakeClock()
	a := newTestAdapter(t, doer, clock, 10)

	resp, err := a.Fetch(context.Background(), Request{Endpoint: "/quote/AAPL"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(resp.Payload) != `{"ok":true}` {
		t.Errorf("payload = %s", resp.Payload)
	}
	if resp.Source != "TestProvider" {
		t.Errorf("source = %q", resp.Source)
	}
	if !strings.Contains(doer.urls[0], "apikey=secret") {
		t.Errorf("credential not applied: %s", doer.urls[0])
	}
	if doer.callCount() != 1 {
		t.Errorf("calls = %d", doer.callCount())
	}
}

func TestRetryBackoffDelays(t *testing.T) {
	doer := &scriptedDoer{responses: []fakeResponse{
		{status: 500, body: "boom"},
		{status: 500, body: "boom"},
		{status: 200, body: "{}"},
	}}
	clock := newFakeClock()
	a := newTestAdapter(t, doer, clock, 10)

	if _, err := a.Fetch(context.Background(), Request{Endpoint: "/x"}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	want := []time.Duration{time.Second, 2 * time.Second}
	got := clock.recorded()
	if len(got) != len(want) {
		t.Fatalf("sleeps = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sleep[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestExhaustedAfterThreeAttempts(t *testing.T) {
	doer := &scriptedDoer{responses: []fakeResponse{{status: 503, body: "down"}}}
	clock := newFakeClock()
	a := newTestAdapter(t, doer, clock, 10)

	_, err := a.Fetch(context.Background(), Request{Endpoint: "/x"})
	if err == nil {
		t.Fatal("expected failure")
	}
	if doer.callCount() != 3 {
		t.Errorf("calls = %d, want 3", doer.callCount())
	}
	if !strings.Contains(err.Error(), "failed after 3 attempts") {
		t.Errorf("error = %v", err)
	}
	if failure.CategoryOf(err) != failure.CategoryNetwork {
		t.Errorf("category = %s", failure.CategoryOf(err))
	}
}

func TestNonRetryableSingleAttempt(t *testing.T) {
	doer := &scriptedDoer{responses: []fakeResponse{{status: 200, body: "<html>not json</html>"}}}
	clock := newFakeClock()
	a := newTestAdapter(t, doer, clock, 10)

	_, err := a.Fetch(context.Background(), Request{Endpoint: "/x"})
	if failure.CategoryOf(err) != failure.CategoryValidation {
		t.Fatalf("category = %s, err = %v", failure.CategoryOf(err), err)
	}
	if doer.callCount() != 1 {
		t.Errorf("calls = %d, want 1 (validation is not retryable)", doer.callCount())
	}
	if len(clock.recorded()) != 0 {
		t.Errorf("unexpected sleeps %v", clock.recorded())
	}
}

func TestRetryAfterHeaderHonored(t *testing.T) {
	doer := &scriptedDoer{responses: []fakeResponse{
		{status: 429, body: "slow down", header: http.Header{"Retry-After": []string{"5"}}},
		{status: 200, body: "{}"},
	}}
	clock := newFakeClock()
	a := newTestAdapter(t, doer, clock, 10)

	if _, err := a.Fetch(context.Background(), Request{Endpoint: "/x"}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	got := clock.recorded()
	// The provider's 5s suggestion beats the 1s backoff.
	if len(got) != 1 || got[0] != 5*time.Second {
		t.Errorf("sleeps = %v, want [5s]", got)
	}
}

func TestSentinelClassification(t *testing.T) {
	p := testProfile(10)
	p.ClassifySentinel = func(payload []byte) *failure.Failure {
		if strings.Contains(string(payload), "Invalid API key") {
			return failure.Configuration("", "invalid API key")
		}
		return nil
	}
	doer := &scriptedDoer{responses: []fakeResponse{
		{status: 200, body: `{"Error Message": "Invalid API key"}`},
	}}
	clock := newFakeClock()
	a, err := New(p, WithCredential("secret"), WithHTTPClient(doer), withClock(clock.now, clock.sleep))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	_, err = a.Fetch(context.Background(), Request{Endpoint: "/x"})
	f := failure.As(err, "")
	if f.Category != failure.CategoryConfiguration {
		t.Errorf("category = %s", f.Category)
	}
	if f.Provider != "TestProvider" {
		t.Errorf("provider = %q, sentinel failures inherit the adapter name", f.Provider)
	}
}

// blockingDoer holds every call until released, so tests can observe queue
// depth and dispatch order.
type blockingDoer struct {
	mu      sync.Mutex
	release chan struct{}
	urls    []string
	active  int
	maxSeen int
}

func (d *blockingDoer) Do(req *http.Request) (*http.Response, error) {
	d.mu.Lock()
	d.active++
	if d.active > d.maxSeen {
		d.maxSeen = d.active
	}
	d.urls = append(d.urls, req.URL.Path)
	d.mu.Unlock()

	<-d.release

	d.mu.Lock()
	d.active--
	d.mu.Unlock()
	return &http.Response{
		StatusCode: 200,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader("{}")),
	}, nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached")
}

func TestFIFOAndSingleInFlight(t *testing.T) {
	doer := &blockingDoer{release: make(chan struct{})}
	a, err := New(testProfile(10), WithCredential("secret"), WithHTTPClient(doer))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	var wg sync.WaitGroup
	fetch := func(endpoint string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Fetch(context.Background(), Request{Endpoint: endpoint})
		}()
	}

	fetch("/first")
	waitFor(t, func() bool { return a.State().InFlight })
	fetch("/second")
	waitFor(t, func() bool { return a.State().QueueDepth == 1 })
	fetch("/third")
	waitFor(t, func() bool { return a.State().QueueDepth == 2 })

	close(doer.release)
	wg.Wait()

	doer.mu.Lock()
	defer doer.mu.Unlock()
	want := []string{"/api/first", "/api/second", "/api/third"}
	if len(doer.urls) != 3 {
		t.Fatalf("urls = %v", doer.urls)
	}
	for i := range want {
		if doer.urls[i] != want[i] {
			t.Errorf("dispatch order %v, want %v", doer.urls, want)
			break
		}
	}
	if doer.maxSeen != 1 {
		t.Errorf("max concurrent transport calls = %d, want 1", doer.maxSeen)
	}
}

func TestRateLimitWindowRollover(t *testing.T) {
	doer := &scriptedDoer{responses: []fakeResponse{{status: 200, body: "{}"}}}
	clock := newFakeClock()
	a := newTestAdapter(t, doer, clock, 2)

	for i := 0; i < 3; i++ {
		if _, err := a.Fetch(context.Background(), Request{Endpoint: "/x"}); err != nil {
			t.Fatalf("Fetch %d: %v", i, err)
		}
	}

	// The third call exhausted the window and slept until reset.
	if len(clock.recorded()) == 0 {
		t.Fatal("expected a rate-limit wait")
	}
	snap := a.State().Window
	if snap.Capacity != 2 {
		t.Errorf("capacity = %d", snap.Capacity)
	}
	if snap.Remaining != 1 {
		t.Errorf("remaining = %d, want 1 (one call against the fresh window)", snap.Remaining)
	}
}

func TestStateSnapshot(t *testing.T) {
	doer := &scriptedDoer{responses: []fakeResponse{{status: 404, body: `{"error":"not found"}`}}}
	clock := newFakeClock()
	a := newTestAdapter(t, doer, clock, 10)

	a.Fetch(context.Background(), Request{Endpoint: "/missing"})

	st := a.State()
	if st.Name != "TestProvider" || !st.Configured {
		t.Errorf("state = %+v", st)
	}
	if st.LastFailure == "" {
		t.Error("last failure should be recorded")
	}
}

func TestFetchContextCanceled(t *testing.T) {
	doer := &blockingDoer{release: make(chan struct{})}
	a, err := New(testProfile(10), WithCredential("secret"), WithHTTPClient(doer))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()
	defer close(doer.release)

	// Occupy the drain loop.
	go a.Fetch(context.Background(), Request{Endpoint: "/first"})
	waitFor(t, func() bool { return a.State().InFlight })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := a.Fetch(ctx, Request{Endpoint: "/second"})
		done <- err
	}()
	waitFor(t, func() bool { return a.State().QueueDepth == 1 })
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestCacheKeyDeterministic(t *testing.T) {
	a := Request{Endpoint: "/query", Params: url.Values{}}
	a.Params.Set("symbol", "AAPL")
	a.Params.Set("function", "GLOBAL_QUOTE")

	b := Request{Endpoint: "/query", Params: url.Values{}}
	b.Params.Set("function", "GLOBAL_QUOTE")
	b.Params.Set("symbol", "AAPL")

	if a.CacheKey("P") != b.CacheKey("P") {
		t.Error("parameter order changed the cache key")
	}
	if a.CacheKey("P") == a.CacheKey("Q") {
		t.Error("providers must not share cache keys")
	}
	if a.CacheKey("P") == (Request{Endpoint: "/query"}).CacheKey("P") {
		t.Error("params must affect the cache key")
	}
}
