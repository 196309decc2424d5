// Package adw orchestrates autonomous developer workflow runs: the phase
// state machine, the context curator, retries and exit-code mapping.
package adw

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"time"
)

// Retry policy defaults.
const (
	DefaultMaxAttempts  = 3
	defaultRetryBackoff = 2 * time.Second
)

// transientPatterns match failures worth retrying; anything else fails fast.
var transientPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)timeout`),
	regexp.MustCompile(`(?i)timed out`),
	regexp.MustCompile(`(?i)rate.?limit`),
	regexp.MustCompile(`(?i)connection reset`),
	regexp.MustCompile(`(?i)overloaded`),
	regexp.MustCompile(`\b5\d{2}\b`),
	regexp.MustCompile(`\b429\b`),
}

// IsTransient reports whether an error looks like a passing infrastructure
// failure rather than a deterministic one.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()

	for _, p := range transientPatterns {
		if p.MatchString(msg) {
			return true
		}
	}

	return false
}

// Retrier re-runs transient failures with exponential backoff, writing one
// progress line per failed attempt.
type Retrier struct {
	MaxAttempts int
	Backoff     time.Duration

	// Progress receives the per-attempt failure lines; nil discards them.
	Progress io.Writer

	// sleep is injected in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrier creates a retrier with the default policy.
func NewRetrier(progress io.Writer) *Retrier {
	return &Retrier{
		MaxAttempts: DefaultMaxAttempts,
		Backoff:     defaultRetryBackoff,
		Progress:    progress,
		sleep:       sleepCtx,
	}
}

// Do runs fn until it succeeds, fails non-transiently, or attempts run out.
// The backoff doubles after each failed attempt.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := r.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	backoff := r.Backoff
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}

	sleep := r.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if r.Progress != nil {
			fmt.Fprintf(r.Progress, "[retry] attempt %d/%d failed: %v\n", attempt, attempts, lastErr)
		}

		if !IsTransient(lastErr) || attempt == attempts {
			return lastErr
		}

		err := sleep(ctx, backoff)
		if err != nil {
			return err
		}

		backoff *= 2
	}

	return lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
