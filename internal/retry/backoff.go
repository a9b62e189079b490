package retry

import (
	"fmt"
	"time"
)

// BackoffPolicy bounds the exponential backoff sequence applied to a task
// after consecutive failures. It is shared by reference across all tasks of
// one endpoint pool and never mutated after construction.
type BackoffPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultBackoffPolicy provides sensible defaults.
var DefaultBackoffPolicy = BackoffPolicy{
	InitialDelay: 100 * time.Millisecond,
	MaxDelay:     10 * time.Second,
}

func (p BackoffPolicy) validate() error {
	if p.InitialDelay <= 0 || p.MaxDelay <= 0 {
		return fmt.Errorf("backoff delays must be positive, got initial=%s max=%s", p.InitialDelay, p.MaxDelay)
	}
	if p.InitialDelay > p.MaxDelay {
		return fmt.Errorf("initial delay %s exceeds max delay %s", p.InitialDelay, p.MaxDelay)
	}
	return nil
}
