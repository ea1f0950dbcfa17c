package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/inventory/internal/core/domain"
	"github.com/vietddude/inventory/internal/infra/resilience"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeLister struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, call int) ([]domain.CatalogItem, error)
}

func (f *fakeLister) ListItems(ctx context.Context) ([]domain.CatalogItem, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.fn(ctx, call)
}

func (f *fakeLister) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// countingGate records what the client reports to the breaker.
type countingGate struct {
	*resilience.Breaker
	successes atomic.Int32
	failures  atomic.Int32
}

func (g *countingGate) Record(success bool) {
	if success {
		g.successes.Add(1)
	} else {
		g.failures.Add(1)
	}
	g.Breaker.Record(success)
}

func newGate(threshold int) *countingGate {
	return &countingGate{Breaker: resilience.NewBreaker("catalog", resilience.BreakerConfig{
		FailureThreshold: threshold,
		OpenDuration:     time.Minute,
	})}
}

func fastPolicy(attempts int) resilience.RetryPolicy {
	return resilience.RetryPolicy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

var sampleItems = []domain.CatalogItem{
	{ID: uuid.MustParse("9a2d3c64-5b1d-4d52-9a58-6b0f2a1c7e11"), Name: "Potion", Description: "Restores a small amount of HP"},
	{ID: uuid.MustParse("0f4c8b7e-2d9a-4e3b-8c1f-5a6b7c8d9e0f"), Name: "Antidote", Description: "Cures poison"},
}

// =============================================================================
// HTTPClient
// =============================================================================

func TestHTTPClient_ListItems(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/items" {
			t.Errorf("expected path /items, got %s", r.URL.Path)
		}
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		_ = json.NewEncoder(w).Encode(sampleItems)
	}))
	defer server.Close()

	items, err := NewHTTPClient(server.URL + "/").ListItems(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0] != sampleItems[0] {
		t.Errorf("expected %+v, got %+v", sampleItems[0], items[0])
	}
}

func TestHTTPClient_StatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusInternalServerError, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusTooManyRequests, true},
		{http.StatusRequestTimeout, true},
		{http.StatusNotFound, false},
		{http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tt.status)
		}))

		_, err := NewHTTPClient(server.URL).ListItems(context.Background())
		server.Close()

		var statusErr *StatusError
		if !errors.As(err, &statusErr) || statusErr.StatusCode != tt.status {
			t.Errorf("status %d: expected StatusError, got %v", tt.status, err)
			continue
		}
		if got := resilience.IsTransient(err); got != tt.transient {
			t.Errorf("status %d: IsTransient = %v, want %v", tt.status, got, tt.transient)
		}
	}
}

func TestHTTPClient_MalformedBodyIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	defer server.Close()

	_, err := NewHTTPClient(server.URL).ListItems(context.Background())
	if !resilience.IsTransient(err) {
		t.Errorf("expected transient parse error, got %v", err)
	}
}

func TestHTTPClient_ConnectionRefusedIsTransient(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewHTTPClient(url).ListItems(context.Background())
	if !resilience.IsTransient(err) {
		t.Errorf("expected transient transport error, got %v", err)
	}
}

// =============================================================================
// ResilientClient
// =============================================================================

func TestResilientClient_SucceedsOnFifthAttempt(t *testing.T) {
	lister := &fakeLister{fn: func(ctx context.Context, call int) ([]domain.CatalogItem, error) {
		if call < 5 {
			return nil, resilience.Transient(errors.New("connection reset"))
		}
		return sampleItems, nil
	}}
	gate := newGate(10)
	client := NewResilientClient(lister, gate, time.Second, fastPolicy(5))

	items, err := client.FetchItems(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("expected 2 items, got %d", len(items))
	}
	if lister.Calls() != 5 {
		t.Errorf("expected 5 attempts, got %d", lister.Calls())
	}
	if got := gate.successes.Load(); got != 1 {
		t.Errorf("expected exactly one success reported, got %d", got)
	}
	if got := gate.failures.Load(); got != 4 {
		t.Errorf("expected 4 failures reported, got %d", got)
	}
	if gate.State() != resilience.StateClosed {
		t.Errorf("expected closed breaker, got %s", gate.State())
	}
}

func TestResilientClient_OpenCircuitSkipsNetwork(t *testing.T) {
	lister := &fakeLister{fn: func(ctx context.Context, call int) ([]domain.CatalogItem, error) {
		return nil, resilience.Transient(errors.New("503"))
	}}
	gate := newGate(3)
	client := NewResilientClient(lister, gate, time.Second, fastPolicy(1))

	for i := 0; i < 3; i++ {
		if _, err := client.FetchItems(context.Background()); !errors.Is(err, domain.ErrRemoteUnavailable) {
			t.Fatalf("fetch %d: expected ErrRemoteUnavailable, got %v", i+1, err)
		}
	}
	if lister.Calls() != 3 {
		t.Fatalf("expected 3 network attempts, got %d", lister.Calls())
	}

	_, err := client.FetchItems(context.Background())
	if !errors.Is(err, domain.ErrRemoteUnavailable) || !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("expected fast fail through open circuit, got %v", err)
	}
	if lister.Calls() != 3 {
		t.Errorf("expected no network attempt on fourth call, got %d total", lister.Calls())
	}
}

func TestResilientClient_BreakerOpeningStopsRetryLoop(t *testing.T) {
	lister := &fakeLister{fn: func(ctx context.Context, call int) ([]domain.CatalogItem, error) {
		return nil, resilience.Transient(errors.New("503"))
	}}
	client := NewResilientClient(lister, newGate(2), time.Second, fastPolicy(5))

	_, err := client.FetchItems(context.Background())
	if !errors.Is(err, domain.ErrRemoteUnavailable) {
		t.Fatalf("expected ErrRemoteUnavailable, got %v", err)
	}
	if lister.Calls() != 2 {
		t.Errorf("expected loop to stop once the circuit opened, got %d attempts", lister.Calls())
	}
}

func TestResilientClient_TimeoutIsFailure(t *testing.T) {
	lister := &fakeLister{fn: func(ctx context.Context, call int) ([]domain.CatalogItem, error) {
		// would succeed, just too late
		time.Sleep(200 * time.Millisecond)
		return sampleItems, nil
	}}
	gate := newGate(10)
	client := NewResilientClient(lister, gate, 20*time.Millisecond, fastPolicy(1))

	_, err := client.FetchItems(context.Background())
	if !errors.Is(err, domain.ErrRemoteUnavailable) || !errors.Is(err, resilience.ErrAttemptTimeout) {
		t.Fatalf("expected timeout surfaced as ErrRemoteUnavailable, got %v", err)
	}
	if gate.failures.Load() != 1 || gate.successes.Load() != 0 {
		t.Errorf("expected one failure reported, got %d failures / %d successes",
			gate.failures.Load(), gate.successes.Load())
	}
}

func TestResilientClient_RejectionIsNotRetried(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		http.Error(w, "no such route", http.StatusNotFound)
	}))
	defer server.Close()

	gate := newGate(3)
	client := NewResilientClient(NewHTTPClient(server.URL), gate, time.Second, fastPolicy(5))

	_, err := client.FetchItems(context.Background())
	if !errors.Is(err, domain.ErrRemoteUnavailable) {
		t.Fatalf("expected ErrRemoteUnavailable, got %v", err)
	}
	if requests.Load() != 1 {
		t.Errorf("expected 1 request, got %d", requests.Load())
	}
	if gate.failures.Load() != 0 {
		t.Errorf("rejection must not count against the breaker")
	}
}

func TestResilientClient_AgainstFlakyServer(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) <= 2 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(sampleItems)
	}))
	defer server.Close()

	client := NewResilientClient(NewHTTPClient(server.URL), newGate(3), time.Second, fastPolicy(5))

	items, err := client.FetchItems(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 || requests.Load() != 3 {
		t.Errorf("expected 2 items after 3 requests, got %d items after %d", len(items), requests.Load())
	}
}

// cancellingGate cancels the caller's context right after admitting it, so the
// retry loop sees a cancelled context before the first attempt.
type cancellingGate struct {
	*resilience.Breaker
	cancel context.CancelFunc
}

func (g *cancellingGate) Allow() error {
	err := g.Breaker.Allow()
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
	return err
}

func newHalfOpenReadyBreaker(t *testing.T) (*resilience.Breaker, func(time.Duration)) {
	t.Helper()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	b := resilience.NewBreaker("catalog",
		resilience.BreakerConfig{FailureThreshold: 1, OpenDuration: time.Second},
		resilience.WithClock(func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return now
		}),
	)
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	b.Record(false)
	if b.State() != resilience.StateOpen {
		t.Fatalf("expected open breaker, got %s", b.State())
	}
	advance(2 * time.Second)
	return b, advance
}

func TestResilientClient_CancelledFetchKeepsTrialAvailable(t *testing.T) {
	lister := &fakeLister{fn: func(ctx context.Context, call int) ([]domain.CatalogItem, error) {
		return sampleItems, nil
	}}
	breaker, _ := newHalfOpenReadyBreaker(t)
	client := NewResilientClient(lister, breaker, time.Second, fastPolicy(5))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.FetchItems(ctx); !errors.Is(err, domain.ErrRemoteUnavailable) {
		t.Fatalf("expected ErrRemoteUnavailable, got %v", err)
	}
	if lister.Calls() != 0 {
		t.Fatalf("cancelled fetch made %d network calls", lister.Calls())
	}

	items, err := client.FetchItems(context.Background())
	if err != nil {
		t.Fatalf("expected the next call to be admitted as the half-open trial, got %v", err)
	}
	if len(items) != len(sampleItems) {
		t.Errorf("expected %d items, got %d", len(sampleItems), len(items))
	}
	if breaker.State() != resilience.StateClosed {
		t.Errorf("expected trial success to close the breaker, got %s", breaker.State())
	}
}

func TestResilientClient_CancelAfterAdmissionReleasesTrial(t *testing.T) {
	lister := &fakeLister{fn: func(ctx context.Context, call int) ([]domain.CatalogItem, error) {
		return sampleItems, nil
	}}
	breaker, _ := newHalfOpenReadyBreaker(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gate := &cancellingGate{Breaker: breaker, cancel: cancel}
	client := NewResilientClient(lister, gate, time.Second, fastPolicy(5))

	if _, err := client.FetchItems(ctx); !errors.Is(err, domain.ErrRemoteUnavailable) {
		t.Fatalf("expected ErrRemoteUnavailable, got %v", err)
	}
	if lister.Calls() != 0 {
		t.Fatalf("expected no network attempt, got %d", lister.Calls())
	}
	if breaker.State() != resilience.StateHalfOpen {
		t.Fatalf("expected half-open breaker, got %s", breaker.State())
	}

	if _, err := client.FetchItems(context.Background()); err != nil {
		t.Fatalf("released trial slot should admit the next call, got %v", err)
	}
	if lister.Calls() != 1 {
		t.Errorf("expected exactly one trial request, got %d", lister.Calls())
	}
	if breaker.State() != resilience.StateClosed {
		t.Errorf("expected closed breaker, got %s", breaker.State())
	}
}
