package batch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kotadb/kotadb/internal/adw"
)

// stubRunner scripts one issue's outcome.
type stubRunner struct {
	result *adw.RunResult
	err    error
	calls  *atomic.Int32
}

func (r *stubRunner) Run(_ context.Context, issue adw.Issue) (*adw.RunResult, error) {
	if r.calls != nil {
		r.calls.Add(1)
	}

	if r.result == nil && r.err == nil {
		return &adw.RunResult{IssueNumber: issue.Number, Success: true, CostUSD: 0.5}, nil
	}

	return r.result, r.err
}

func TestRun_AggregatesTotals(t *testing.T) {
	t.Parallel()

	outcomes := map[int]*stubRunner{
		1: {result: &adw.RunResult{IssueNumber: 1, Success: true, CostUSD: 1.0}},
		2: {result: &adw.RunResult{IssueNumber: 2, Success: true, CostUSD: 0.5}},
		3: {result: &adw.RunResult{IssueNumber: 3, Error: "validation failed"}, err: errors.New("validation failed")},
	}

	b := New(func(issue adw.Issue) Runner { return outcomes[issue.Number] }, nil)

	report := b.Run(context.Background(), []adw.Issue{{Number: 1}, {Number: 2}, {Number: 3}}, Options{})

	require.Len(t, report.Results, 3)
	assert.Equal(t, 2, report.Totals.SuccessCount)
	assert.Equal(t, 1, report.Totals.FailureCount)
	assert.InDelta(t, 1.5, report.Totals.CostUSD, 1e-9)

	// Results keep issue order regardless of completion order.
	assert.Equal(t, 1, report.Results[0].IssueNumber)
	assert.Equal(t, 3, report.Results[2].IssueNumber)
	assert.Equal(t, "validation failed", report.Results[2].Error)
}

func TestRun_RunnerErrorWithNilResult(t *testing.T) {
	t.Parallel()

	b := New(func(adw.Issue) Runner {
		return &stubRunner{err: errors.New("worktree creation failed")}
	}, nil)

	report := b.Run(context.Background(), []adw.Issue{{Number: 8}}, Options{})

	require.Len(t, report.Results, 1)
	assert.Equal(t, 8, report.Results[0].IssueNumber)
	assert.Equal(t, "worktree creation failed", report.Results[0].Error)
	assert.Equal(t, 1, report.Totals.FailureCount)
}

func TestRun_FailFastSkipsPendingIssues(t *testing.T) {
	t.Parallel()

	var started atomic.Int32

	b := New(func(issue adw.Issue) Runner {
		if issue.Number == 1 {
			return &stubRunner{err: errors.New("boom"), calls: &started}
		}

		return &stubRunner{calls: &started}
	}, nil)

	issues := make([]adw.Issue, 10)
	for i := range issues {
		issues[i] = adw.Issue{Number: i + 1}
	}

	// One worker forces sequential execution, so the first failure is
	// observed before any later issue starts.
	report := b.Run(context.Background(), issues, Options{Concurrency: 1, FailFast: true})

	require.Len(t, report.Results, 10)
	assert.Equal(t, int32(1), started.Load(), "issues after the failure never start")

	for _, r := range report.Results[1:] {
		assert.Equal(t, ErrFailFast.Error(), r.Error)
	}

	assert.Equal(t, 10, report.Totals.FailureCount)
}

func TestEffectiveConcurrency(t *testing.T) {
	t.Parallel()

	env := map[string]string{}

	b := New(nil, nil)
	b.lookupEnv = func(key string) (string, bool) {
		v, ok := env[key]

		return v, ok
	}

	assert.Equal(t, DefaultConcurrency, b.effectiveConcurrency(0))
	assert.Equal(t, 7, b.effectiveConcurrency(7))

	env[EnvMaxParallelAgents] = "2"
	assert.Equal(t, 2, b.effectiveConcurrency(7), "environment caps the request")
	assert.Equal(t, 1, b.effectiveConcurrency(1), "requests under the cap pass through")

	env[EnvMaxParallelAgents] = "not-a-number"
	assert.Equal(t, 7, b.effectiveConcurrency(7), "invalid cap is ignored")
}
