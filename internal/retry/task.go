package retry

import (
	"net/url"
	"time"
)

// taskKind discriminates the two task variants sharing the scheduling queue.
type taskKind int

const (
	taskResolve taskKind = iota // endpoint host still needs DNS resolution
	taskAttempt                 // one concrete address of an endpoint
)

const (
	defaultAttemptTimeout = 10 * time.Second
	maxAttemptTimeout     = 120 * time.Second
	timeoutGrowth         = 1.5
)

// scheduledTask is one entry in the scheduling queue. Tasks are owned by the
// queue except while borrowed for a single execution, and are mutated only by
// their own reschedule step.
type scheduledTask struct {
	kind     taskKind
	endpoint *url.URL
	address  string // resolved IP, attempt tasks only

	dueAt     time.Time
	policy    *BackoffPolicy
	nextDelay time.Duration
	latency   time.Duration
	timeout   time.Duration // adaptive per-address timeout, attempt tasks only
}

func newResolveTask(endpoint *url.URL, policy *BackoffPolicy) *scheduledTask {
	return &scheduledTask{
		kind:      taskResolve,
		endpoint:  endpoint,
		policy:    policy,
		nextDelay: policy.InitialDelay,
	}
}

// newAttemptTask wraps one resolved address of the parent's endpoint. It
// inherits the parent's due time so freshly resolved addresses compete on
// equal footing, but owns its adaptive timeout independently.
func newAttemptTask(parent *scheduledTask, address string) *scheduledTask {
	return &scheduledTask{
		kind:      taskAttempt,
		endpoint:  parent.endpoint,
		address:   address,
		dueAt:     parent.dueAt,
		policy:    parent.policy,
		nextDelay: parent.policy.InitialDelay,
		timeout:   defaultAttemptTimeout,
	}
}

// reschedule updates due time and next delay after one execution. A success
// makes the task immediately eligible again and resets the backoff; a failure
// pushes it out by the current delay and doubles the delay up to the cap.
func (t *scheduledTask) reschedule(success bool, now time.Time) {
	if success {
		t.dueAt = time.Time{}
		t.nextDelay = t.policy.InitialDelay
		return
	}
	delay := max(t.nextDelay, t.policy.InitialDelay)
	t.dueAt = now.Add(delay)
	t.nextDelay = min(2*t.nextDelay, t.policy.MaxDelay)
}

// growTimeout widens the adaptive per-address timeout after a connect or
// timeout failure. Orthogonal to the due-time backoff.
func (t *scheduledTask) growTimeout() {
	t.timeout = min(time.Duration(float64(t.timeout)*timeoutGrowth), maxAttemptTimeout)
}

// before reports whether t should run ahead of o: earlier due time first,
// ties broken by last recorded latency so previously fast addresses win.
func (t *scheduledTask) before(o *scheduledTask) bool {
	if !t.dueAt.Equal(o.dueAt) {
		return t.dueAt.Before(o.dueAt)
	}
	return t.latency < o.latency
}
