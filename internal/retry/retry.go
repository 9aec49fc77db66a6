// Package retry wraps calls to flaky local services with exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"syscall"
	"time"

	"ltl/internal/metrics"
)

// Policy controls how many times an operation is attempted and how long to
// wait between attempts.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter is the fraction (0-1) of each delay that is randomized.
	Jitter float64
	Logger *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy returns 3 attempts starting at 500ms, capped at 10s.
func DefaultPolicy(logger *slog.Logger) Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Jitter:      0.1,
		Logger:      logger,
	}
}

// Do runs fn until it succeeds, returns a non-transient error, or the attempt
// budget is spent. The delay before attempt n (n >= 2) is BaseDelay*2^(n-2),
// capped at MaxDelay.
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := p.Backoff(attempt)
			logger.Warn("retrying", "op", op, "attempt", attempt, "backoff", delay, "error", lastErr)
			metrics.RetryAttempts.Inc()
			if err := p.wait(ctx, delay); err != nil {
				return err
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !IsTransient(err) {
			return err
		}
		lastErr = err
	}

	if attempts == 1 {
		return lastErr
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, attempts, lastErr)
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Backoff returns the wait before the given attempt (1-based).
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt <= 1 || p.BaseDelay <= 0 {
		return 0
	}
	shift := attempt - 2
	if shift > 30 {
		shift = 30
	}
	d := p.BaseDelay * time.Duration(1<<uint(shift))
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter > 0 {
		j := p.Jitter
		if j > 1 {
			j = 1
		}
		spread := float64(d) * j
		d = time.Duration(float64(d) + spread*(2*rand.Float64()-1))
		if d < 0 {
			d = 0
		}
	}
	return d
}

func (p Policy) wait(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// StatusError is a non-2xx response from an HTTP backend.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

type transientError struct{ err error }

func (e transientError) Error() string { return e.err.Error() }
func (e transientError) Unwrap() error { return e.err }

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Transient marks err as retryable regardless of its type.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return transientError{err}
}

// Permanent marks err as not retryable regardless of its type.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err}
}

// IsTransient reports whether err is worth another attempt: connection
// refused or reset, network timeouts, truncated responses, 5xx and 429.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var perm permanentError
	if errors.As(err, &perm) {
		return false
	}
	var tr transientError
	if errors.As(err, &tr) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500 || se.StatusCode == http.StatusTooManyRequests
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
