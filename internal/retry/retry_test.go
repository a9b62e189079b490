package retry

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"testing"
	"time"
)

func fastBackoff() BackoffPolicy {
	return BackoffPolicy{InitialDelay: time.Millisecond, MaxDelay: 8 * time.Millisecond}
}

func newTestRetry(t *testing.T, cfg Config) *Retry {
	t.Helper()
	if cfg.Backoff == (BackoffPolicy{}) {
		cfg.Backoff = fastBackoff()
	}
	if cfg.KeyResolutionTimeout == 0 {
		cfg.KeyResolutionTimeout = 5 * time.Second
	}
	r, err := New(cfg, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func connectErr() error {
	return &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
}

func TestInvokeReturnsNilAfterConsistentNotFound(t *testing.T) {
	r := newTestRetry(t, Config{
		Endpoints:  []string{"https://a.example", "https://b.example"},
		RetryCount: 6,
		Resolver: &fakeResolver{hosts: map[string][]string{
			"a.example": {"10.0.0.1"},
			"b.example": {"10.0.0.2"},
		}},
	})

	calls := 0
	result, err := r.Invoke(context.Background(), "test key", func(_ context.Context, att *Attempt) (any, error) {
		calls++
		return nil, att.Retry("no key here", 404)
	})
	if err != nil {
		t.Fatalf("Invoke returned error %v, want nil after consistent 404", err)
	}
	if result != nil {
		t.Errorf("Invoke result = %v, want nil", result)
	}
	if calls != 6 {
		t.Errorf("action ran %d times, want the full budget of 6", calls)
	}
}

func TestInvokeSuccessResetsBackoffAndRecordsLatency(t *testing.T) {
	r := newTestRetry(t, Config{
		Endpoints:  []string{"https://a.example"},
		RetryCount: 10,
		Resolver:   &fakeResolver{hosts: map[string][]string{"a.example": {"10.0.0.1"}}},
	})

	calls := 0
	result, err := r.Invoke(context.Background(), "test key", func(_ context.Context, att *Attempt) (any, error) {
		calls++
		if calls <= 2 {
			return nil, connectErr()
		}
		att.ReportLatency(5 * time.Millisecond)
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if result != "ok" {
		t.Errorf("Invoke result = %v, want ok", result)
	}
	if calls != 3 {
		t.Errorf("action ran %d times, want 3", calls)
	}

	r.queue.mu.Lock()
	defer r.queue.mu.Unlock()
	if len(r.queue.heap) != 1 {
		t.Fatalf("queue holds %d tasks, want the single returned attempt task", len(r.queue.heap))
	}
	task := r.queue.heap[0]
	if !task.dueAt.IsZero() {
		t.Errorf("task dueAt = %v, want zero (immediately eligible) after success", task.dueAt)
	}
	if task.nextDelay != r.cfg.Backoff.InitialDelay {
		t.Errorf("task nextDelay = %s, want reset to %s", task.nextDelay, r.cfg.Backoff.InitialDelay)
	}
	if task.latency != 5*time.Millisecond {
		t.Errorf("task latency = %s, want the reported 5ms", task.latency)
	}
}

func TestInvokeBudgetExhaustedAfterSingleAttempt(t *testing.T) {
	r := newTestRetry(t, Config{
		Endpoints:  []string{"https://a.example"},
		RetryCount: 1,
		Resolver:   &fakeResolver{hosts: map[string][]string{"a.example": {"10.0.0.1"}}},
	})

	calls := 0
	_, err := r.Invoke(context.Background(), "test key", func(context.Context, *Attempt) (any, error) {
		calls++
		return nil, errors.New("boom")
	})

	var be *BudgetExhaustedError
	if !errors.As(err, &be) {
		t.Fatalf("Invoke error = %v, want *BudgetExhaustedError", err)
	}
	if be.Attempts != 1 || calls != 1 {
		t.Errorf("attempts = %d (action ran %d times), want exactly 1", be.Attempts, calls)
	}
	if be.Description != "test key" {
		t.Errorf("description = %q, want %q", be.Description, "test key")
	}
}

func TestInvokePredicateDeclinesRetry(t *testing.T) {
	r := newTestRetry(t, Config{
		Endpoints:  []string{"https://a.example"},
		RetryCount: 10,
		Resolver:   &fakeResolver{hosts: map[string][]string{"a.example": {"10.0.0.1"}}},
	})

	sentinel := errors.New("bad request")
	calls := 0
	_, err := r.Invoke(context.Background(), "test key", func(_ context.Context, att *Attempt) (any, error) {
		calls++
		att.RegisterRetryPredicate(func(err error) Verdict {
			if errors.Is(err, sentinel) {
				return VerdictStop
			}
			return VerdictNone
		})
		return nil, sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("Invoke error = %v, want the declined failure %v", err, sentinel)
	}
	if calls != 1 {
		t.Errorf("action ran %d times, want 1 when the predicate declines", calls)
	}
}

func TestInvokeFatalPropagatesImmediately(t *testing.T) {
	r := newTestRetry(t, Config{
		Endpoints:  []string{"https://a.example"},
		RetryCount: 10,
		Resolver:   &fakeResolver{hosts: map[string][]string{"a.example": {"10.0.0.1"}}},
	})

	sentinel := errors.New("out of disk")
	calls := 0
	_, err := r.Invoke(context.Background(), "test key", func(context.Context, *Attempt) (any, error) {
		calls++
		return nil, Fatal(sentinel)
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("Invoke error = %v, want wrapped %v", err, sentinel)
	}
	if calls != 1 {
		t.Errorf("action ran %d times, want 1 for a fatal failure", calls)
	}

	r.queue.mu.Lock()
	queued := len(r.queue.heap)
	r.queue.mu.Unlock()
	if queued != 1 {
		t.Errorf("queue holds %d tasks after the fatal failure, want the returned attempt task", queued)
	}
}

func TestInvokeCanceledMidAttemptRetainsTask(t *testing.T) {
	r := newTestRetry(t, Config{
		Endpoints:  []string{"https://a.example"},
		RetryCount: 5,
		Resolver:   &fakeResolver{hosts: map[string][]string{"a.example": {"10.0.0.1"}}},
	})

	ctx, cancel := context.WithCancel(context.Background())
	_, err := r.Invoke(ctx, "test key", func(context.Context, *Attempt) (any, error) {
		cancel()
		return nil, ctx.Err()
	})
	if err == nil {
		t.Fatal("Invoke succeeded, want the cancellation error")
	}

	r.queue.mu.Lock()
	queued := len(r.queue.heap)
	r.queue.mu.Unlock()
	if queued != 1 {
		t.Fatalf("queue holds %d tasks after cancellation, want the returned attempt task", queued)
	}

	// A later invocation must still reach the retained address.
	var addr string
	if _, err := r.Invoke(context.Background(), "test key", func(_ context.Context, att *Attempt) (any, error) {
		addr = att.Address
		return "ok", nil
	}); err != nil {
		t.Fatalf("second Invoke: %v", err)
	}
	if addr != "10.0.0.1" {
		t.Errorf("second invocation hit %q, want the retained 10.0.0.1", addr)
	}
}

func TestInvokeExpiredDeadlineSkipsAction(t *testing.T) {
	r := newTestRetry(t, Config{
		Endpoints:            []string{"https://a.example"},
		RetryCount:           1,
		KeyResolutionTimeout: 30 * time.Millisecond,
		Backoff:              BackoffPolicy{InitialDelay: 200 * time.Millisecond, MaxDelay: time.Second},
		Resolver:             &fakeResolver{hosts: map[string][]string{"a.example": {"10.0.0.1"}}},
	})

	calls := 0
	alwaysFail := func(context.Context, *Attempt) (any, error) {
		calls++
		return nil, connectErr()
	}

	// First invocation burns the attempt and pushes the address 200ms out.
	if _, err := r.Invoke(context.Background(), "test key", alwaysFail); err == nil {
		t.Fatal("first Invoke succeeded, want budget exhaustion")
	}
	if calls != 1 {
		t.Fatalf("action ran %d times in first invocation, want 1", calls)
	}

	// Nothing can become due within the 30ms deadline now.
	_, err := r.Invoke(context.Background(), "test key", alwaysFail)
	var be *BudgetExhaustedError
	if !errors.As(err, &be) {
		t.Fatalf("second Invoke error = %v, want *BudgetExhaustedError", err)
	}
	if be.Attempts != 0 {
		t.Errorf("second invocation attempts = %d, want 0", be.Attempts)
	}
	if calls != 1 {
		t.Errorf("action ran %d times total, want 1 (none within the expired deadline)", calls)
	}
}

func TestInvokeAdaptiveTimeoutGrowth(t *testing.T) {
	r := newTestRetry(t, Config{
		Endpoints:  []string{"https://a.example"},
		RetryCount: 3,
		Resolver:   &fakeResolver{hosts: map[string][]string{"a.example": {"10.0.0.1"}}},
	})

	var timeouts []time.Duration
	_, err := r.Invoke(context.Background(), "test key", func(_ context.Context, att *Attempt) (any, error) {
		timeouts = append(timeouts, att.Timeout)
		return nil, connectErr()
	})
	if err == nil {
		t.Fatal("Invoke succeeded, want budget exhaustion")
	}

	want := []time.Duration{10 * time.Second, 15 * time.Second, 22500 * time.Millisecond}
	if len(timeouts) != len(want) {
		t.Fatalf("recorded %d timeouts, want %d", len(timeouts), len(want))
	}
	for i := range want {
		if timeouts[i] != want[i] {
			t.Errorf("attempt %d timeout = %s, want %s", i+1, timeouts[i], want[i])
		}
	}
}

func TestInvokeNotFoundIsStickyAcrossMixedFailures(t *testing.T) {
	r := newTestRetry(t, Config{
		Endpoints:  []string{"https://a.example"},
		RetryCount: 3,
		Resolver:   &fakeResolver{hosts: map[string][]string{"a.example": {"10.0.0.1"}}},
	})

	calls := 0
	result, err := r.Invoke(context.Background(), "test key", func(_ context.Context, att *Attempt) (any, error) {
		calls++
		if calls == 1 {
			return nil, att.Retry("no key here", 404)
		}
		return nil, connectErr()
	})
	if err != nil {
		t.Fatalf("Invoke error = %v, want nil once any attempt reported 404", err)
	}
	if result != nil {
		t.Errorf("Invoke result = %v, want nil", result)
	}
}

func TestInvokeFailsOverPastUnresolvableEndpoint(t *testing.T) {
	r := newTestRetry(t, Config{
		Endpoints:  []string{"https://dead.example", "https://good.example"},
		RetryCount: 5,
		Resolver:   &fakeResolver{hosts: map[string][]string{"good.example": {"10.0.0.9"}}},
	})

	result, err := r.Invoke(context.Background(), "test key", func(_ context.Context, att *Attempt) (any, error) {
		if att.Address != "10.0.0.9" {
			t.Errorf("attempt against %s, want only good.example's address", att.Address)
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if result != "ok" {
		t.Errorf("Invoke result = %v, want ok", result)
	}
}

func TestInvokeReusesAddressStateAcrossCalls(t *testing.T) {
	r := newTestRetry(t, Config{
		Endpoints:  []string{"https://a.example"},
		RetryCount: 5,
		Resolver:   &fakeResolver{hosts: map[string][]string{"a.example": {"10.0.0.1"}}},
	})

	ok := func(context.Context, *Attempt) (any, error) { return "ok", nil }
	if _, err := r.Invoke(context.Background(), "first", ok); err != nil {
		t.Fatalf("first Invoke: %v", err)
	}

	// The second call must reuse the already-resolved address immediately.
	start := time.Now()
	var addr string
	_, err := r.Invoke(context.Background(), "second", func(_ context.Context, att *Attempt) (any, error) {
		addr = att.Address
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("second Invoke: %v", err)
	}
	if addr != "10.0.0.1" {
		t.Errorf("second invocation hit %s, want the retained 10.0.0.1", addr)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("second invocation took %s, want immediate reuse", elapsed)
	}
}
