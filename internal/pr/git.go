package pr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// ErrGitFailed wraps git subprocess failures during the PR phase.
var ErrGitFailed = errors.New("git command failed")

const gitTimeout = 2 * time.Minute

// Git stages, commits and pushes the workflow's changes inside a worktree.
type Git struct {
	WorkDir string
	Logger  *slog.Logger
}

// CommitMessage renders the conventional-commit subject for a workflow run.
func CommitMessage(issueType, domain string, issueNumber int) string {
	return fmt.Sprintf("%s(%s): implement issue #%d", issueType, domain, issueNumber)
}

// Stage adds the given paths. When the list is empty, or any path fails to
// stage, it falls back to staging the whole tree.
func (g *Git) Stage(ctx context.Context, paths []string) error {
	if len(paths) > 0 {
		args := append([]string{"add", "--"}, paths...)

		_, err := g.run(ctx, args...)
		if err == nil {
			return nil
		}

		g.Logger.Warn("staging listed paths failed, staging everything", "error", err)
	}

	_, err := g.run(ctx, "add", "-A")
	if err != nil {
		return err
	}

	return nil
}

// Commit creates the commit; an empty index is reported as an error by git
// and surfaced to the caller.
func (g *Git) Commit(ctx context.Context, message string) error {
	_, err := g.run(ctx, "commit", "-m", message)

	return err
}

// Push publishes the branch, setting upstream on origin.
func (g *Git) Push(ctx context.Context, branch string) error {
	_, err := g.run(ctx, "push", "-u", "origin", branch)

	return err
}

// HasStagedChanges reports whether the index differs from HEAD.
func (g *Git) HasStagedChanges(ctx context.Context) (bool, error) {
	// diff --cached --quiet exits 1 when there are staged changes.
	out, err := g.run(ctx, "diff", "--cached", "--name-only")
	if err != nil {
		return false, err
	}

	return strings.TrimSpace(out) != "", nil
}

func (g *Git) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.WorkDir

	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%w: git %s: %s", ErrGitFailed, strings.Join(args, " "),
			strings.TrimSpace(string(out)))
	}

	return string(out), nil
}
