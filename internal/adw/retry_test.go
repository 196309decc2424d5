package adw

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTransient(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want bool
	}{
		{errors.New("request timed out"), true},
		{errors.New("Rate limit exceeded"), true},
		{errors.New("connection reset by peer"), true},
		{errors.New("API overloaded, retry later"), true},
		{errors.New("upstream returned 503"), true},
		{errors.New("got 429 from API"), true},
		{errors.New("syntax error in agent output"), false},
		{errors.New("file not found"), false},
		{nil, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, IsTransient(tc.err), "%v", tc.err)
	}
}

func TestRetrier_SucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	var progress bytes.Buffer

	var slept []time.Duration

	r := &Retrier{
		MaxAttempts: 3,
		Backoff:     time.Second,
		Progress:    &progress,
		sleep: func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)

			return nil
		},
	}

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}

		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, slept, "backoff doubles")
	assert.Contains(t, progress.String(), "[retry] attempt 1/3 failed: connection reset")
	assert.Contains(t, progress.String(), "[retry] attempt 2/3 failed: connection reset")
}

func TestRetrier_NonTransientFailsFast(t *testing.T) {
	t.Parallel()

	r := &Retrier{
		MaxAttempts: 3,
		Backoff:     time.Second,
		sleep: func(context.Context, time.Duration) error {
			t.Fatal("must not sleep on a deterministic failure")

			return nil
		},
	}

	calls := 0
	fatal := errors.New("invalid credentials")

	err := r.Do(context.Background(), func(context.Context) error {
		calls++

		return fatal
	})

	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestRetrier_ExhaustsAttempts(t *testing.T) {
	t.Parallel()

	r := &Retrier{
		MaxAttempts: 2,
		Backoff:     time.Second,
		sleep:       func(context.Context, time.Duration) error { return nil },
	}

	calls := 0

	err := r.Do(context.Background(), func(context.Context) error {
		calls++

		return errors.New("timeout")
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetrier_CancelledDuringBackoff(t *testing.T) {
	t.Parallel()

	r := NewRetrier(nil)
	r.Backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Do(ctx, func(context.Context) error {
		return errors.New("timeout")
	})

	assert.ErrorIs(t, err, context.Canceled)
}
