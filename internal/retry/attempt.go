package retry

import (
	"net/url"
	"time"
)

// Verdict is a predicate's opinion on whether a failure should be retried.
type Verdict int

const (
	VerdictNone  Verdict = iota // no opinion, ask the next predicate
	VerdictRetry                // retry this failure
	VerdictStop                 // propagate this failure to the caller
)

// Predicate classifies a failure the scheduler could not classify itself.
// Predicates run in registration order; the first verdict other than
// VerdictNone wins.
type Predicate func(error) Verdict

// Attempt is handed to the action for exactly one attempt against one
// resolved address, then discarded.
type Attempt struct {
	Number   int           // 1-based attempt number within this invocation
	Budget   int           // total attempt budget of the invocation
	Endpoint *url.URL      // endpoint being contacted
	Address  string        // resolved address being contacted
	Timeout  time.Duration // adaptive timeout the action should apply

	latency    time.Duration
	predicates []Predicate
}

// RegisterRetryPredicate appends a classification predicate for failures the
// scheduler has no built-in opinion on.
func (a *Attempt) RegisterRetryPredicate(p Predicate) {
	a.predicates = append(a.predicates, p)
}

// Retry builds an explicit retry signal for this attempt. The action returns
// it as its error, typically when protocol-level information (an HTTP status,
// say) already settles that the attempt should be retried.
func (a *Attempt) Retry(reason string, statusCode int) error {
	return &RetrySignal{Reason: reason, StatusCode: statusCode}
}

// ReportLatency records the latency the action observed on success. It is
// copied onto the owning task and used to prefer fast addresses later.
func (a *Attempt) ReportLatency(d time.Duration) {
	a.latency = d
}

// shouldRetry evaluates the registered predicates. With no opinionated
// predicate the default is to retry.
func (a *Attempt) shouldRetry(err error) bool {
	for _, p := range a.predicates {
		switch p(err) {
		case VerdictRetry:
			return true
		case VerdictStop:
			return false
		}
	}
	return true
}
