package adw

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kotadb/kotadb/internal/agent"
	"github.com/kotadb/kotadb/internal/checkpoint"
	"github.com/kotadb/kotadb/internal/pr"
	"github.com/kotadb/kotadb/internal/worktree"
)

const (
	analysisOutput = "DOMAIN: auth\nISSUE_TYPE: feature\nREQUIREMENTS:\n- add session expiry"
	planOutput     = "SPEC_PATH: specs/issue-7.md"
	buildOutput    = "MODIFIED_FILES:\n- README.md"
	curatedOutput  = `{"summary":"short phase summary"}`
)

// initRepo creates a git repository with a develop branch and one commit.
func initRepo(t *testing.T) string {
	t.Helper()

	root := t.TempDir()

	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = root

		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}

	run("init", "-b", "develop")
	run("config", "user.email", "dev@example.com")
	run("config", "user.name", "Dev")

	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("# fixture\n"), 0o644))
	run("add", "-A")
	run("commit", "-m", "initial")

	return root
}

type orchFixture struct {
	orch        *Orchestrator
	engine      *agent.FakeEngine
	checkpoints *checkpoint.Store
	manifest    *checkpoint.Manifest
	worktrees   *worktree.Manager
	repoRoot    string
}

func newFixture(t *testing.T, responses ...agent.FakeResponse) *orchFixture {
	t.Helper()

	root := initRepo(t)
	dataDir := t.TempDir()

	engine := agent.NewFakeEngine(responses...)
	checkpoints := checkpoint.NewStore(filepath.Join(dataDir, "checkpoints"))
	manifest := checkpoint.NewManifest(dataDir)
	worktrees := worktree.NewManager(root, "develop", nil)
	prModule := pr.NewModule("acme/web", &pr.Validator{}, nil)

	orch := NewOrchestrator(engine, newContexts(t), checkpoints, manifest, worktrees, prModule,
		Config{SkipImprove: true, BaseBranch: "develop"}, nil)

	return &orchFixture{
		orch:        orch,
		engine:      engine,
		checkpoints: checkpoints,
		manifest:    manifest,
		worktrees:   worktrees,
		repoRoot:    root,
	}
}

func TestNewOrchestrator_WiresPushRetry(t *testing.T) {
	t.Parallel()

	prModule := pr.NewModule("acme/web", &pr.Validator{}, nil)
	require.Nil(t, prModule.PushRetry)

	NewOrchestrator(agent.NewFakeEngine(), newContexts(t), nil, nil, nil, prModule, Config{}, nil)

	assert.NotNil(t, prModule.PushRetry, "push goes through the transient retrier")
}

func TestRun_StopsAtPRWithNothingToCommit(t *testing.T) {
	t.Parallel()

	f := newFixture(t,
		agent.FakeResponse{Output: analysisOutput, CostUSD: 0.10},
		agent.FakeResponse{Output: curatedOutput, CostUSD: 0.01},
		agent.FakeResponse{Output: planOutput, CostUSD: 0.20},
		agent.FakeResponse{Output: curatedOutput, CostUSD: 0.01},
		agent.FakeResponse{Output: buildOutput, CostUSD: 0.30},
		agent.FakeResponse{Output: curatedOutput, CostUSD: 0.01},
	)

	result, err := f.orch.Run(context.Background(), Issue{Number: 7, Title: "Session expiry"})
	require.Error(t, err)
	assert.Equal(t, ExitNothingToCommit, ExitCode(err), "no files changed in the worktree")

	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.InDelta(t, 0.63, result.CostUSD, 1e-9, "phase and curation costs accumulate")

	// The failed run leaves a resumable checkpoint behind.
	cp, err := f.checkpoints.Load(7)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, "auth", cp.Domain)
	assert.Equal(t, "feature", cp.IssueType)
	assert.Equal(t, "specs/issue-7.md", cp.SpecPath)
	assert.Equal(t, []string{"README.md"}, cp.FilesModified)
	assert.Equal(t, []string{PhaseAnalysis, PhasePlan, PhaseBuild}, cp.CompletedPhases)
	assert.True(t, strings.HasPrefix(cp.BranchName, "automation/7-"))
	assert.Contains(t, cp.WorktreePath, filepath.Join(f.repoRoot, ".worktrees"))

	exists, err := f.worktrees.Exists(context.Background(), cp.WorktreePath)
	require.NoError(t, err)
	assert.True(t, exists, "failed runs keep the worktree for resumption")

	records, err := f.manifest.Records()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, checkpoint.StatusFailed, records[0].Status)
	assert.Equal(t, PhaseBuild, records[0].CurrentPhase)
}

func TestRun_ResumeSkipsCompletedPhases(t *testing.T) {
	t.Parallel()

	f := newFixture(t,
		agent.FakeResponse{Output: buildOutput},
		agent.FakeResponse{Output: curatedOutput},
	)

	wt, err := f.worktrees.Create(context.Background(), 9)
	require.NoError(t, err)

	require.NoError(t, f.checkpoints.Save(&checkpoint.Checkpoint{
		IssueNumber:     9,
		WorkflowID:      "wf-resume",
		CompletedPhases: []string{PhaseAnalysis, PhasePlan},
		Domain:          "auth",
		IssueType:       "bug",
		SpecPath:        "specs/issue-9.md",
		WorktreePath:    wt.Path,
		BranchName:      wt.Branch,
	}))

	result, err := f.orch.Run(context.Background(), Issue{Number: 9, Title: "Fix login"})
	require.Error(t, err)
	assert.Equal(t, ExitNothingToCommit, ExitCode(err))
	assert.Equal(t, "wf-resume", result.WorkflowID)

	calls := f.engine.Calls()
	require.Len(t, calls, 2, "only build and its curation run")
	assert.Contains(t, calls[0].Prompt, "Implement the spec at specs/issue-9.md")
	assert.Equal(t, wt.Path, calls[0].WorkDir)
}

func TestRun_AnalysisParseFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, agent.FakeResponse{Output: "I could not classify this issue."})

	_, err := f.orch.Run(context.Background(), Issue{Number: 3, Title: "Vague report"})
	require.Error(t, err)
	assert.Equal(t, ExitParseFailed, ExitCode(err))
	assert.ErrorIs(t, err, ErrParseFailed)

	cp, err := f.checkpoints.Load(3)
	require.NoError(t, err)
	require.NotNil(t, cp, "checkpoint survives for a rerun")
	assert.Empty(t, cp.CompletedPhases)
}

func TestRun_CancelBeforePhases(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.orch.Cancel()

	_, err := f.orch.Run(context.Background(), Issue{Number: 5, Title: "Cancelled"})
	require.Error(t, err)
	assert.Equal(t, ExitCancelled, ExitCode(err))
	assert.ErrorIs(t, err, ErrCancelled)

	records, err := f.manifest.Records()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, checkpoint.StatusCancelled, records[0].Status)
}

func TestMergePaths(t *testing.T) {
	t.Parallel()

	merged := mergePaths([]string{"a.ts", "b.ts"}, []string{"b.ts", "c.ts"})
	assert.Equal(t, []string{"a.ts", "b.ts", "c.ts"}, merged)
}
