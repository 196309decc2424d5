// Package batch runs workflow orchestrations for multiple issues
// concurrently under a bounded worker pool.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/kotadb/kotadb/internal/adw"
)

// DefaultConcurrency is the worker count when none is configured.
const DefaultConcurrency = 3

// EnvMaxParallelAgents caps configured concurrency from the environment.
const EnvMaxParallelAgents = "ADW_MAX_PARALLEL_AGENTS"

// ErrFailFast marks issues skipped after an earlier failure in fail-fast
// mode.
var ErrFailFast = errors.New("Cancelled (fail-fast)")

// Runner starts one orchestrated run; satisfied by *adw.Orchestrator.
type Runner interface {
	Run(ctx context.Context, issue adw.Issue) (*adw.RunResult, error)
}

// Options tune one batch invocation.
type Options struct {
	// Concurrency is the worker count; zero uses DefaultConcurrency. The
	// ADW_MAX_PARALLEL_AGENTS environment variable caps it either way.
	Concurrency int

	// FailFast cancels issues not yet started once any issue fails.
	FailFast bool
}

// Totals aggregates a finished batch.
type Totals struct {
	DurationMS   int64   `json:"durationMs"`
	CostUSD      float64 `json:"costUsd"`
	SuccessCount int     `json:"successCount"`
	FailureCount int     `json:"failureCount"`
}

// Report is the outcome of a whole batch.
type Report struct {
	Results []adw.RunResult `json:"results"`
	Totals  Totals          `json:"totals"`
}

// Batch fans issues out over orchestrator runs.
type Batch struct {
	// newRunner builds an isolated runner per issue.
	newRunner func(issue adw.Issue) Runner
	logger    *slog.Logger

	// lookupEnv is swapped in tests.
	lookupEnv func(string) (string, bool)
}

// New creates a batch driver. newRunner is invoked once per issue so each
// run gets its own orchestrator state.
func New(newRunner func(issue adw.Issue) Runner, logger *slog.Logger) *Batch {
	if logger == nil {
		logger = slog.Default()
	}

	return &Batch{newRunner: newRunner, logger: logger, lookupEnv: os.LookupEnv}
}

// Run executes all issues and always returns a full report; per-issue
// failures are recorded, not returned.
func (b *Batch) Run(ctx context.Context, issues []adw.Issue, opts Options) *Report {
	started := time.Now()

	workers := b.effectiveConcurrency(opts.Concurrency)

	b.logger.Info("batch starting", "issues", len(issues), "workers", workers, "failFast", opts.FailFast)

	results := make([]adw.RunResult, len(issues))

	var failed atomic.Bool

	var mu sync.Mutex

	p := pool.New().WithContext(ctx).WithMaxGoroutines(workers)

	for i, issue := range issues {
		p.Go(func(ctx context.Context) error {
			if opts.FailFast && failed.Load() {
				mu.Lock()
				results[i] = adw.RunResult{
					IssueNumber: issue.Number,
					Error:       ErrFailFast.Error(),
				}
				mu.Unlock()

				return nil
			}

			result, err := b.newRunner(issue).Run(ctx, issue)
			if result == nil {
				result = &adw.RunResult{IssueNumber: issue.Number}
			}

			if err != nil {
				if result.Error == "" {
					result.Error = err.Error()
				}

				failed.Store(true)
			}

			mu.Lock()
			results[i] = *result
			mu.Unlock()

			return nil
		})
	}

	// Worker errors are folded into results above.
	_ = p.Wait()

	report := &Report{Results: results}

	for _, r := range results {
		report.Totals.CostUSD += r.CostUSD

		if r.Success {
			report.Totals.SuccessCount++
		} else {
			report.Totals.FailureCount++
		}
	}

	report.Totals.DurationMS = time.Since(started).Milliseconds()

	b.logger.Info("batch finished",
		"succeeded", report.Totals.SuccessCount,
		"failed", report.Totals.FailureCount,
		"costUsd", fmt.Sprintf("%.4f", report.Totals.CostUSD))

	return report
}

// effectiveConcurrency applies the default and the environment cap.
func (b *Batch) effectiveConcurrency(requested int) int {
	if requested <= 0 {
		requested = DefaultConcurrency
	}

	raw, ok := b.lookupEnv(EnvMaxParallelAgents)
	if !ok {
		return requested
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		b.logger.Warn("ignoring invalid concurrency cap", "value", raw)

		return requested
	}

	if requested > limit {
		return limit
	}

	return requested
}
