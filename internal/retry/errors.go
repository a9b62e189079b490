package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

// RetrySignal is the explicit "retry this attempt" outcome produced by
// Attempt.Retry. It travels as an ordinary error value so retry intent is
// part of the action's return contract. StatusCode feeds the not-found
// detection across attempts.
type RetrySignal struct {
	Reason     string
	StatusCode int
}

func (s *RetrySignal) Error() string {
	return s.Reason
}

// BudgetExhaustedError reports that an invocation ran out of attempts or
// wall-clock budget without a success or a confirmed not-found.
type BudgetExhaustedError struct {
	Description string
	Attempts    int
	Elapsed     time.Duration
}

func (e *BudgetExhaustedError) Error() string {
	return fmt.Sprintf("%s: gave up after %d attempts in %s",
		e.Description, e.Attempts, e.Elapsed.Round(time.Millisecond))
}

type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Fatal marks err as unrecoverable: Invoke propagates it immediately without
// rescheduling or retrying.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

func isFatal(err error) bool {
	var fe *fatalError
	return errors.As(err, &fe)
}

// isConnectError reports whether err looks like a failure to reach the
// address at all: dial errors, resets, and timeouts of any flavor.
func isConnectError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded)
}
