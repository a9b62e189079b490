// Package retry implements the failover retry scheduler for contacting a
// pool of redundant keyserver endpoints.
//
// This package contains:
//   - BackoffPolicy: bounds for the exponential backoff sequence
//   - scheduledTask: tagged union of DNS-resolution and per-address attempt tasks
//   - schedulingQueue: time-ordered queue interleaving resolution and attempts
//   - Attempt: per-attempt contract exposed to the caller's action
//   - Retry: the borrow/execute/classify/reschedule orchestration loop
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/apssouza22/keyfetch/internal/metrics"
)

// DefaultEndpoints is the endpoint pool used when none is configured.
var DefaultEndpoints = []string{
	"https://keyserver.ubuntu.com",
	"https://keys.openpgp.org",
}

// Config defines scheduler behavior. All fields have defaults; there is no
// way to change them after construction.
type Config struct {
	// Endpoints is the candidate keyserver pool.
	Endpoints []string

	// KeyResolutionTimeout is the hard wall-clock deadline per Invoke call.
	KeyResolutionTimeout time.Duration

	// Backoff bounds the per-address retry delay.
	Backoff BackoffPolicy

	// RetryCount is the maximum number of attempts per Invoke call.
	RetryCount int

	// MinLoggableTimeout is the attempt duration above which a connect or
	// timeout failure is surfaced as a warning rather than debug noise.
	MinLoggableTimeout time.Duration

	// Resolver overrides DNS resolution, mainly for tests.
	// Defaults to net.DefaultResolver.
	Resolver Resolver
}

// DefaultConfig provides sensible defaults.
var DefaultConfig = Config{
	Endpoints:            DefaultEndpoints,
	KeyResolutionTimeout: 40 * time.Second,
	Backoff:              DefaultBackoffPolicy,
	RetryCount:           30,
	MinLoggableTimeout:   4 * time.Second,
}

// Action is the caller-supplied operation executed against one resolved
// address per attempt. It may perform blocking I/O; the scheduler only needs
// to know whether to retry, via the returned error.
type Action func(ctx context.Context, att *Attempt) (any, error)

// Retry owns the scheduling queue for one endpoint pool. Backoff and
// adaptive-timeout state intentionally survive across Invoke calls on the
// same instance; callers keep one Retry per logical pool for the life of the
// process. At most one action is in flight per Invoke call.
type Retry struct {
	cfg   Config
	queue *schedulingQueue
	log   *slog.Logger
	now   func() time.Time
}

// New builds a Retry and seeds its queue with one immediately eligible
// resolution task per endpoint, in randomized order.
func New(cfg Config, log *slog.Logger) (*Retry, error) {
	if len(cfg.Endpoints) == 0 {
		cfg.Endpoints = DefaultEndpoints
	}
	if cfg.KeyResolutionTimeout <= 0 {
		cfg.KeyResolutionTimeout = DefaultConfig.KeyResolutionTimeout
	}
	if cfg.Backoff == (BackoffPolicy{}) {
		cfg.Backoff = DefaultBackoffPolicy
	}
	if err := cfg.Backoff.validate(); err != nil {
		return nil, err
	}
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = DefaultConfig.RetryCount
	}
	if cfg.MinLoggableTimeout <= 0 {
		cfg.MinLoggableTimeout = DefaultConfig.MinLoggableTimeout
	}
	if cfg.Resolver == nil {
		cfg.Resolver = net.DefaultResolver
	}
	if log == nil {
		log = slog.Default()
	}

	endpoints := make([]*url.URL, 0, len(cfg.Endpoints))
	for _, raw := range cfg.Endpoints {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid endpoint %q: %w", raw, err)
		}
		if u.Hostname() == "" {
			return nil, fmt.Errorf("endpoint %q has no host", raw)
		}
		endpoints = append(endpoints, u)
	}
	rand.Shuffle(len(endpoints), func(i, j int) {
		endpoints[i], endpoints[j] = endpoints[j], endpoints[i]
	})

	r := &Retry{
		cfg: cfg,
		queue: &schedulingQueue{
			resolver: cfg.Resolver,
			log:      log,
			now:      time.Now,
		},
		log: log,
		now: time.Now,
	}
	for _, u := range endpoints {
		r.queue.push(newResolveTask(u, &r.cfg.Backoff))
	}
	return r, nil
}

// Invoke runs action against one resolved address at a time until it
// succeeds, a failure is classified as terminal, or the retry budget runs
// out. A (nil, nil) return means every endpoint that answered reported "not
// found"; callers treat that as confirmed absence, not failure.
func (r *Retry) Invoke(ctx context.Context, description string, action Action) (any, error) {
	start := r.now()
	deadline := start.Add(r.cfg.KeyResolutionTimeout)

	sawNotFound := false
	attempts := 0
	for attempts < r.cfg.RetryCount {
		task, err := r.queue.borrow(ctx, deadline)
		if err != nil {
			return nil, err
		}
		if task == nil {
			break // nothing became ready within the budget
		}
		attempts++

		att := &Attempt{
			Number:   attempts,
			Budget:   r.cfg.RetryCount,
			Endpoint: task.endpoint,
			Address:  task.address,
			Timeout:  task.timeout,
		}
		attemptStart := r.now()
		result, err := action(ctx, att)

		if err == nil {
			latency := att.latency
			if latency == 0 {
				latency = r.now().Sub(attemptStart)
			}
			task.reschedule(true, r.now())
			task.latency = latency
			r.queue.push(task)
			metrics.AttemptsTotal.WithLabelValues(task.endpoint.Host, "success").Inc()
			r.log.Debug("attempt succeeded", "description", description,
				"address", task.address, "attempt", attempts, "latency", latency)
			return result, nil
		}
		if isFatal(err) {
			task.reschedule(false, r.now())
			r.queue.push(task)
			return nil, err
		}
		if ctx.Err() != nil {
			// The invocation itself was canceled mid-attempt. The address is
			// not at fault, so the task goes back untouched for later calls.
			r.queue.push(task)
			return nil, err
		}

		var signal *RetrySignal
		switch {
		case errors.As(err, &signal):
			if signal.StatusCode == http.StatusNotFound {
				sawNotFound = true
			}
			metrics.AttemptsTotal.WithLabelValues(task.endpoint.Host, "retry_signal").Inc()
			r.log.Debug("attempt asked for retry", "description", description,
				"address", task.address, "reason", signal.Reason, "status", signal.StatusCode)

		case isConnectError(err):
			elapsed := r.now().Sub(attemptStart)
			if elapsed >= r.cfg.MinLoggableTimeout {
				r.log.Warn("slow connect failure", "description", description,
					"address", task.address, "elapsed", elapsed, "error", err)
			} else {
				r.log.Debug("connect failure", "description", description,
					"address", task.address, "elapsed", elapsed, "error", err)
			}
			task.growTimeout()
			metrics.AttemptsTotal.WithLabelValues(task.endpoint.Host, "connect_error").Inc()

		default:
			if !att.shouldRetry(err) {
				task.reschedule(false, r.now())
				r.queue.push(task)
				metrics.AttemptsTotal.WithLabelValues(task.endpoint.Host, "declined").Inc()
				return nil, err
			}
			metrics.AttemptsTotal.WithLabelValues(task.endpoint.Host, "error").Inc()
			r.log.Debug("retrying after unclassified failure", "description", description,
				"address", task.address, "error", err)
		}

		task.reschedule(false, r.now())
		r.queue.push(task)
	}

	elapsed := r.now().Sub(start)
	if sawNotFound {
		r.log.Info("treating key as not found", "description", description,
			"attempts", attempts, "elapsed", elapsed.Round(time.Millisecond))
		return nil, nil
	}
	return nil, &BudgetExhaustedError{
		Description: description,
		Attempts:    attempts,
		Elapsed:     elapsed,
	}
}
