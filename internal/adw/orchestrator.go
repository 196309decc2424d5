package adw

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kotadb/kotadb/internal/agent"
	"github.com/kotadb/kotadb/internal/checkpoint"
	"github.com/kotadb/kotadb/internal/pr"
	"github.com/kotadb/kotadb/internal/wfcontext"
	"github.com/kotadb/kotadb/internal/worktree"
)

// defaultPhaseTimeout bounds one agent phase invocation.
const defaultPhaseTimeout = 30 * time.Minute

// ErrCancelled reports a run stopped at a phase boundary after Cancel.
var ErrCancelled = errors.New("run cancelled")

// Issue is the GitHub issue a run implements.
type Issue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// RunResult is the outcome of one orchestrated run.
type RunResult struct {
	IssueNumber int     `json:"issueNumber"`
	WorkflowID  string  `json:"workflowId"`
	Success     bool    `json:"success"`
	PRURL       string  `json:"prUrl,omitempty"`
	CostUSD     float64 `json:"costUsd"`
	DurationMS  int64   `json:"durationMs"`
	Error       string  `json:"error,omitempty"`
}

// Config tunes an orchestrator.
type Config struct {
	// Model is the primary agent model; empty uses the engine default.
	Model string

	// CuratorModel is the cheap model used between phases.
	CuratorModel string

	// PhaseTimeout bounds each phase's agent invocation.
	PhaseTimeout time.Duration

	// SkipImprove disables the optional improve phase.
	SkipImprove bool

	// BaseBranch is the PR target branch.
	BaseBranch string
}

// Orchestrator drives the analysis, plan, build, improve and PR phases for
// one issue, checkpointing after each phase.
type Orchestrator struct {
	engine      agent.Engine
	curator     *Curator
	contexts    *wfcontext.Store
	checkpoints *checkpoint.Store
	manifest    *checkpoint.Manifest
	worktrees   *worktree.Manager
	prModule    *pr.Module
	retrier     *Retrier
	logger      *slog.Logger
	cfg         Config

	cancelled atomic.Bool
}

// NewOrchestrator wires the orchestrator from its collaborators.
func NewOrchestrator(
	engine agent.Engine,
	contexts *wfcontext.Store,
	checkpoints *checkpoint.Store,
	manifest *checkpoint.Manifest,
	worktrees *worktree.Manager,
	prModule *pr.Module,
	cfg Config,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.PhaseTimeout <= 0 {
		cfg.PhaseTimeout = defaultPhaseTimeout
	}

	retrier := NewRetrier(os.Stderr)

	if prModule != nil && prModule.PushRetry == nil {
		prModule.PushRetry = retrier.Do
	}

	return &Orchestrator{
		engine:      engine,
		curator:     NewCurator(engine, contexts, cfg.CuratorModel, logger),
		contexts:    contexts,
		checkpoints: checkpoints,
		manifest:    manifest,
		worktrees:   worktrees,
		prModule:    prModule,
		retrier:     retrier,
		logger:      logger,
		cfg:         cfg,
	}
}

// Cancel requests a stop; the run ends at the next phase boundary.
func (o *Orchestrator) Cancel() { o.cancelled.Store(true) }

// Run executes the workflow for one issue, resuming from a checkpoint when
// one exists.
func (o *Orchestrator) Run(ctx context.Context, issue Issue) (*RunResult, error) {
	started := time.Now()

	cp, err := o.checkpoints.Load(issue.Number)
	if err != nil {
		return nil, Exitf(ExitStateIO, err)
	}

	resuming := cp != nil
	if !resuming {
		cp = &checkpoint.Checkpoint{
			IssueNumber: issue.Number,
			WorkflowID:  uuid.NewString(),
		}
	} else {
		o.logger.Info("resuming from checkpoint",
			"issue", issue.Number, "completed", cp.CompletedPhases)
	}

	result := &RunResult{IssueNumber: issue.Number, WorkflowID: cp.WorkflowID}

	err = o.ensureWorktree(ctx, issue.Number, cp)
	if err != nil {
		return o.finish(result, started, err)
	}

	o.recordManifest(cp, checkpoint.StatusRunning, started, result, "")

	runErr := o.runPhases(ctx, issue, cp, result)

	return o.finish(result, started, runErr)
}

func (o *Orchestrator) runPhases(ctx context.Context, issue Issue, cp *checkpoint.Checkpoint, result *RunResult) error {
	phases := []struct {
		name string
		run  func(context.Context, Issue, *checkpoint.Checkpoint, *RunResult) error
	}{
		{PhaseAnalysis, o.phaseAnalysis},
		{PhasePlan, o.phasePlan},
		{PhaseBuild, o.phaseBuild},
		{PhaseImprove, o.phaseImprove},
		{PhasePR, o.phasePR},
	}

	for _, phase := range phases {
		if o.cancelled.Load() {
			return Exitf(ExitCancelled, fmt.Errorf("%w before %s phase", ErrCancelled, phase.name))
		}

		if cp.Completed(phase.name) {
			o.logger.Info("skipping completed phase", "issue", issue.Number, "phase", phase.name)

			continue
		}

		if phase.name == PhaseImprove && o.cfg.SkipImprove {
			continue
		}

		o.logger.Info("phase starting", "issue", issue.Number, "phase", phase.name)

		err := phase.run(ctx, issue, cp, result)
		if err != nil {
			// Improve is best-effort: its failure never sinks the run.
			if phase.name == PhaseImprove {
				o.logger.Warn("improve phase failed, continuing", "issue", issue.Number, "error", err)
			} else {
				return err
			}
		}

		cp.MarkCompleted(phase.name)

		err = o.checkpoints.Save(cp)
		if err != nil {
			return Exitf(ExitStateIO, err)
		}
	}

	return nil
}

func (o *Orchestrator) phaseAnalysis(ctx context.Context, issue Issue, cp *checkpoint.Checkpoint, result *RunResult) error {
	prompt := analysisPrompt(issue)

	output, err := o.invoke(ctx, prompt, cp.WorktreePath, result)
	if err != nil {
		return err
	}

	analysis, err := ParseAnalysis(output)
	if err != nil {
		return Exitf(ExitParseFailed, err)
	}

	cp.Domain = analysis.Domain
	cp.IssueType = analysis.IssueType

	o.curate(ctx, cp, PhaseAnalysis, output, result)

	return nil
}

func (o *Orchestrator) phasePlan(ctx context.Context, issue Issue, cp *checkpoint.Checkpoint, result *RunResult) error {
	injection, err := o.curator.Injection(ctx, cp.WorkflowID, []string{wfcontext.PhaseAnalysis})
	if err != nil {
		o.logger.Warn("context injection unavailable", "phase", PhasePlan, "error", err)
	}

	prompt := planPrompt(issue, cp, injection)

	output, err := o.invoke(ctx, prompt, cp.WorktreePath, result)
	if err != nil {
		return err
	}

	specPath, err := ParseSpecPath(output)
	if err != nil {
		return Exitf(ExitParseFailed, err)
	}

	cp.SpecPath = specPath

	o.curate(ctx, cp, PhasePlan, output, result)

	return nil
}

func (o *Orchestrator) phaseBuild(ctx context.Context, issue Issue, cp *checkpoint.Checkpoint, result *RunResult) error {
	if cp.SpecPath == "" {
		return Exitf(ExitMissingSpec, fmt.Errorf("build phase requires the plan's spec path"))
	}

	injection, err := o.curator.Injection(ctx, cp.WorkflowID,
		[]string{wfcontext.PhaseAnalysis, wfcontext.PhasePlan})
	if err != nil {
		o.logger.Warn("context injection unavailable", "phase", PhaseBuild, "error", err)
	}

	prompt := buildPrompt(issue, cp, injection)

	output, err := o.invoke(ctx, prompt, cp.WorktreePath, result)
	if err != nil {
		return err
	}

	cp.FilesModified = ParseModifiedFiles(output)

	o.curate(ctx, cp, PhaseBuild, output, result)

	return nil
}

func (o *Orchestrator) phaseImprove(ctx context.Context, issue Issue, cp *checkpoint.Checkpoint, result *RunResult) error {
	injection, err := o.curator.Injection(ctx, cp.WorkflowID,
		[]string{wfcontext.PhaseAnalysis, wfcontext.PhasePlan, wfcontext.PhaseBuild})
	if err != nil {
		o.logger.Warn("context injection unavailable", "phase", PhaseImprove, "error", err)
	}

	prompt := improvePrompt(issue, cp, injection)

	output, err := o.invoke(ctx, prompt, cp.WorktreePath, result)
	if err != nil {
		return err
	}

	if extra := ParseModifiedFiles(output); len(extra) > 0 {
		cp.FilesModified = mergePaths(cp.FilesModified, extra)
	}

	o.curate(ctx, cp, PhaseImprove, output, result)

	return nil
}

func (o *Orchestrator) phasePR(ctx context.Context, issue Issue, cp *checkpoint.Checkpoint, result *RunResult) error {
	prResult, err := o.prModule.Run(ctx, pr.Input{
		IssueNumber:   issue.Number,
		IssueTitle:    issue.Title,
		IssueType:     cp.IssueType,
		Domain:        cp.Domain,
		Branch:        cp.BranchName,
		BaseBranch:    o.cfg.BaseBranch,
		WorkDir:       cp.WorktreePath,
		ModifiedFiles: cp.FilesModified,
		SpecPath:      cp.SpecPath,
		CostUSD:       result.CostUSD,
		DurationMS:    time.Since(timeOrNow(cp.CreatedAt)).Milliseconds(),
	})

	switch {
	case errors.Is(err, pr.ErrValidationFailed):
		return Exitf(ExitValidationFailed, err)
	case errors.Is(err, pr.ErrNothingToCommit):
		return Exitf(ExitNothingToCommit, err)
	case errors.Is(err, pr.ErrGitFailed):
		return Exitf(ExitGitFailed, err)
	case err != nil:
		return Exitf(ExitGitHubAPI, err)
	}

	result.PRURL = prResult.URL

	return nil
}

// invoke runs one agent call with retry on transient failures, accumulating
// cost into the run result.
func (o *Orchestrator) invoke(ctx context.Context, prompt, workDir string, result *RunResult) (string, error) {
	var output string

	err := o.retrier.Do(ctx, func(ctx context.Context) error {
		res, err := o.engine.Run(ctx, agent.Request{
			Prompt:  prompt,
			Model:   o.cfg.Model,
			WorkDir: workDir,
			Timeout: o.cfg.PhaseTimeout,
		})
		if err != nil {
			return err
		}

		output = res.Output
		result.CostUSD += res.CostUSD

		return nil
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", Exitf(ExitTimeout, err)
		}

		return "", Exitf(ExitAgentFailed, err)
	}

	return output, nil
}

// curate is best-effort: curation failures degrade to a warning.
func (o *Orchestrator) curate(ctx context.Context, cp *checkpoint.Checkpoint, phase, output string, result *RunResult) {
	cost, err := o.curator.Curate(ctx, cp.WorkflowID, phase, cp.Domain, output)

	result.CostUSD += cost

	if err != nil {
		o.logger.Warn("curation failed", "phase", phase, "error", err)
	}
}

func (o *Orchestrator) ensureWorktree(ctx context.Context, issueNumber int, cp *checkpoint.Checkpoint) error {
	if cp.WorktreePath != "" {
		exists, err := o.worktrees.Exists(ctx, cp.WorktreePath)
		if err != nil {
			return Exitf(ExitGitFailed, err)
		}

		if exists {
			return nil
		}

		o.logger.Warn("checkpointed worktree is gone, creating a fresh one",
			"issue", issueNumber, "path", cp.WorktreePath)
	}

	wt, err := o.worktrees.Create(ctx, issueNumber)
	if err != nil {
		return Exitf(ExitGitFailed, err)
	}

	cp.WorktreePath = wt.Path
	cp.BranchName = wt.Branch

	err = o.checkpoints.Save(cp)
	if err != nil {
		return Exitf(ExitStateIO, err)
	}

	return nil
}

// finish settles run state: manifest status, checkpoint retention and the
// final result shape.
func (o *Orchestrator) finish(result *RunResult, started time.Time, runErr error) (*RunResult, error) {
	result.DurationMS = time.Since(started).Milliseconds()

	cp, loadErr := o.checkpoints.Load(result.IssueNumber)
	if loadErr != nil {
		o.logger.Warn("could not reload checkpoint", "issue", result.IssueNumber, "error", loadErr)
	}

	if runErr == nil {
		result.Success = true

		o.cleanupAfterSuccess(result, cp)
		o.recordManifest(cp, checkpoint.StatusCompleted, started, result, "")

		return result, nil
	}

	result.Error = runErr.Error()

	status := checkpoint.StatusFailed
	if errors.Is(runErr, ErrCancelled) {
		status = checkpoint.StatusCancelled
	}

	o.recordManifest(cp, status, started, result, runErr.Error())

	// The checkpoint stays so a rerun resumes at the failed phase.
	return result, runErr
}

func (o *Orchestrator) cleanupAfterSuccess(result *RunResult, cp *checkpoint.Checkpoint) {
	ctx := context.Background()

	_, err := o.contexts.Clear(ctx, result.WorkflowID)
	if err != nil {
		o.logger.Warn("could not clear workflow context", "workflow", result.WorkflowID, "error", err)
	}

	err = o.checkpoints.Delete(result.IssueNumber)
	if err != nil {
		o.logger.Warn("could not delete checkpoint", "issue", result.IssueNumber, "error", err)
	}

	if cp != nil && cp.WorktreePath != "" {
		err = o.worktrees.Remove(ctx, &worktree.Worktree{
			Path:   cp.WorktreePath,
			Branch: "", // the pushed branch outlives the worktree
			Issue:  result.IssueNumber,
		}, true, false)
		if err != nil {
			o.logger.Warn("could not remove worktree", "path", cp.WorktreePath, "error", err)
		}
	}
}

func (o *Orchestrator) recordManifest(cp *checkpoint.Checkpoint, status string, started time.Time, result *RunResult, errMsg string) {
	rec := checkpoint.RunRecord{
		IssueNumber:  result.IssueNumber,
		Status:       status,
		StartedAt:    started.UTC().Format(time.RFC3339),
		PRURL:        result.PRURL,
		CostUSD:      result.CostUSD,
		DurationMS:   result.DurationMS,
		ErrorMessage: errMsg,
	}

	if cp != nil {
		rec.WorktreePath = cp.WorktreePath
		rec.Branch = cp.BranchName

		if n := len(cp.CompletedPhases); n > 0 {
			rec.CurrentPhase = cp.CompletedPhases[n-1]
		}
	}

	if status != checkpoint.StatusRunning {
		rec.CompletedAt = time.Now().UTC().Format(time.RFC3339)
	}

	err := o.manifest.Upsert(rec)
	if err != nil {
		o.logger.Warn("could not update run manifest", "issue", result.IssueNumber, "error", err)
	}
}

func mergePaths(base, extra []string) []string {
	seen := make(map[string]bool, len(base))
	for _, p := range base {
		seen[p] = true
	}

	for _, p := range extra {
		if !seen[p] {
			base = append(base, p)
			seen[p] = true
		}
	}

	return base
}

func timeOrNow(rfc3339 string) time.Time {
	t, err := time.Parse(time.RFC3339, rfc3339)
	if err != nil {
		return time.Now()
	}

	return t
}

func analysisPrompt(issue Issue) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Analyze GitHub issue #%d: %s\n\n%s\n\n", issue.Number, issue.Title, issue.Body)
	b.WriteString("Classify the issue and extract its requirements. End your output with exactly these labeled sections:\n\n")
	b.WriteString("DOMAIN: <single lowercase token naming the affected domain>\n")
	b.WriteString("ISSUE_TYPE: <feature|bug|chore|refactor>\n")
	b.WriteString("REQUIREMENTS:\n<concrete, testable requirements, one per line>\n")

	return b.String()
}

func planPrompt(issue Issue, cp *checkpoint.Checkpoint, injection string) string {
	var b strings.Builder

	if injection != "" {
		b.WriteString(injection)
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Write an implementation spec for issue #%d (%s, domain %s): %s\n\n",
		issue.Number, cp.IssueType, cp.Domain, issue.Title)
	b.WriteString("The spec must contain the sections: problem, approach, files, validation. ")
	b.WriteString("Write it to a markdown file inside the worktree and end your output with:\n\n")
	b.WriteString("SPEC_PATH: <path to the spec file>\n")

	return b.String()
}

func buildPrompt(issue Issue, cp *checkpoint.Checkpoint, injection string) string {
	var b strings.Builder

	if injection != "" {
		b.WriteString(injection)
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Implement the spec at %s for issue #%d. ", cp.SpecPath, issue.Number)
	b.WriteString("Follow the repository's existing conventions and keep changes scoped to the spec. ")
	b.WriteString("End your output with:\n\n")
	b.WriteString("MODIFIED_FILES:\n<one repository-relative path per line>\n")

	return b.String()
}

func improvePrompt(issue Issue, cp *checkpoint.Checkpoint, injection string) string {
	var b strings.Builder

	if injection != "" {
		b.WriteString(injection)
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Review the implementation of issue #%d against the spec at %s. ", issue.Number, cp.SpecPath)
	b.WriteString("Fix defects, tighten tests and remove debug leftovers; do not expand scope. ")
	b.WriteString("If you change files, end your output with:\n\n")
	b.WriteString("MODIFIED_FILES:\n<one repository-relative path per line>\n")

	return b.String()
}
