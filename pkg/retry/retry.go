// Package retry provides a bounded retry helper with a fixed delay.
package retry

import (
	"context"
	"errors"
	"time"
)

// ErrRetriesExhausted is returned when every attempt failed without a
// terminal error of its own.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Stop wraps err to abort the retry loop immediately.
func Stop(err error) error {
	return &stopError{err: err}
}

type stopError struct {
	err error
}

func (s *stopError) Error() string { return s.err.Error() }
func (s *stopError) Unwrap() error { return s.err }

// Do runs fn up to attempts times, sleeping delay between tries. It returns
// nil on the first success, the wrapped error when fn calls Stop, the
// context error if the context ends mid-loop, and otherwise the last failure
// joined with ErrRetriesExhausted.
func Do(ctx context.Context, attempts int, delay time.Duration, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var last error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		var stop *stopError
		if errors.As(err, &stop) {
			return stop.err
		}
		last = err
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return errors.Join(ErrRetriesExhausted, last)
}
