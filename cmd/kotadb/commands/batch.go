package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kotadb/kotadb/internal/adw"
	"github.com/kotadb/kotadb/internal/batch"
)

// NewBatchCommand creates the concurrent multi-issue workflow command.
func NewBatchCommand(opts *GlobalOptions) *cobra.Command {
	var (
		issues      []int
		concurrency int
		failFast    bool
		skipImprove bool
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run workflows for multiple issues concurrently",
		Long: `Run the autonomous workflow for several issues at once under a bounded
worker pool. Each issue gets its own worktree and branch. With --fail-fast,
issues not yet started are cancelled after the first failure.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			if len(issues) == 0 {
				return adw.Exitf(adw.ExitInvalidArgs, errors.New("--issues is required"))
			}

			app, err := newApp(opts, false)
			if err != nil {
				return err
			}
			defer app.Close()

			batchIssues := make([]adw.Issue, 0, len(issues))

			for _, n := range issues {
				issue, fetchErr := fetchIssue(app.Cfg.Automation.Repo, n)
				if fetchErr != nil {
					return adw.Exitf(adw.ExitGitHubAPI, fetchErr)
				}

				batchIssues = append(batchIssues, *issue)
			}

			runner := batch.New(func(adw.Issue) batch.Runner {
				orchestrator, buildErr := buildOrchestrator(app, skipImprove)
				if buildErr != nil {
					return failedRunner{err: buildErr}
				}

				return orchestrator
			}, app.Providers.Logger)

			report := runner.Run(cobraCmd.Context(), batchIssues, batch.Options{
				Concurrency: concurrency,
				FailFast:    failFast,
			})

			batch.WriteSummary(os.Stdout, report)

			if report.Totals.FailureCount > 0 {
				return adw.Exitf(adw.ExitAgentFailed,
					fmt.Errorf("%d of %d issues failed", report.Totals.FailureCount, len(issues)))
			}

			return nil
		},
	}

	cmd.Flags().IntSliceVar(&issues, "issues", nil, "issue numbers to run")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "worker count (default 3, capped by ADW_MAX_PARALLEL_AGENTS)")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "cancel unstarted issues after the first failure")
	cmd.Flags().BoolVar(&skipImprove, "skip-improve", false, "skip the optional improve phase")

	return cmd
}

// failedRunner surfaces orchestrator construction errors as run results.
type failedRunner struct{ err error }

func (f failedRunner) Run(_ context.Context, issue adw.Issue) (*adw.RunResult, error) {
	return &adw.RunResult{IssueNumber: issue.Number, Error: f.err.Error()}, f.err
}
