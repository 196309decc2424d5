// Package worktree manages isolated git worktrees for concurrent workflow
// runs. Git is driven as a subprocess with explicit argv and captured
// output; nothing is shell-interpolated.
package worktree

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	// DirName is the worktree container directory under the repo root.
	DirName = ".worktrees"

	// BranchPrefix prefixes every automation branch.
	BranchPrefix = "automation/"

	// DefaultBaseBranch is the fork point for new worktrees.
	DefaultBaseBranch = "develop"

	defaultGitTimeout = 30 * time.Second
)

// ErrGitFailed wraps git subprocess failures.
var ErrGitFailed = errors.New("git command failed")

// Worktree describes one created worktree.
type Worktree struct {
	Path      string `json:"path"`
	Branch    string `json:"branch"`
	Issue     int    `json:"issue"`
	CreatedAt string `json:"created_at"`
}

// Manager creates and removes worktrees under one repository root.
type Manager struct {
	root       string
	baseBranch string
	timeout    time.Duration
	logger     *slog.Logger

	// now is injected in tests for stable naming.
	now func() time.Time
}

// NewManager creates a worktree manager for the repository at root.
func NewManager(root, baseBranch string, logger *slog.Logger) *Manager {
	if baseBranch == "" {
		baseBranch = DefaultBaseBranch
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		root:       root,
		baseBranch: baseBranch,
		timeout:    defaultGitTimeout,
		logger:     logger,
		now:        time.Now,
	}
}

// timestamp is ISO-8601 with ":" replaced so it is filesystem- and
// branch-name-safe.
func (m *Manager) timestamp() string {
	return strings.ReplaceAll(m.now().UTC().Format(time.RFC3339), ":", "-")
}

// Create adds a worktree at <root>/.worktrees/<issue>-<timestamp> on a
// fresh branch automation/<issue>-<timestamp> forked from the base branch.
func (m *Manager) Create(ctx context.Context, issue int) (*Worktree, error) {
	ts := m.timestamp()
	name := fmt.Sprintf("%d-%s", issue, ts)
	path := filepath.Join(m.root, DirName, name)
	branch := BranchPrefix + name

	_, err := m.git(ctx, "worktree", "add", path, "-b", branch, m.baseBranch)
	if err != nil {
		return nil, err
	}

	m.logger.Info("created worktree", "path", path, "branch", branch, "base", m.baseBranch)

	return &Worktree{Path: path, Branch: branch, Issue: issue, CreatedAt: ts}, nil
}

// Remove deletes a worktree. A missing worktree is a no-op. With
// removeBranch set, the branch is deleted afterwards; branch deletion
// failures are logged, not returned.
func (m *Manager) Remove(ctx context.Context, wt *Worktree, force, removeBranch bool) error {
	exists, err := m.Exists(ctx, wt.Path)
	if err != nil {
		return err
	}

	if exists {
		args := []string{"worktree", "remove"}
		if force {
			args = append(args, "--force")
		}

		args = append(args, wt.Path)

		_, err = m.git(ctx, args...)
		if err != nil {
			// Already-pruned worktrees leave only the directory behind.
			rmErr := os.RemoveAll(wt.Path)
			if rmErr != nil {
				return fmt.Errorf("worktree remove: %w; manual rm: %v", err, rmErr)
			}
		}
	}

	if removeBranch && wt.Branch != "" {
		_, branchErr := m.git(ctx, "branch", "-D", wt.Branch)
		if branchErr != nil {
			m.logger.Warn("could not delete branch", "branch", wt.Branch, "error", branchErr)
		}
	}

	return nil
}

// Exists consults `git worktree list --porcelain` for the path.
func (m *Manager) Exists(ctx context.Context, path string) (bool, error) {
	paths, err := m.List(ctx)
	if err != nil {
		return false, err
	}

	for _, p := range paths {
		if p == path {
			return true, nil
		}
	}

	return false, nil
}

// List returns the paths of all registered worktrees.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	out, err := m.git(ctx, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}

	var paths []string

	for _, line := range strings.Split(out, "\n") {
		if rest, ok := strings.CutPrefix(line, "worktree "); ok {
			paths = append(paths, strings.TrimSpace(rest))
		}
	}

	return paths, nil
}

// git runs one git command under the repository root.
func (m *Manager) git(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = m.root

	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("%w: git %s timed out after %s", ErrGitFailed, args[0], m.timeout)
		}

		return "", fmt.Errorf("%w: git %s: %s", ErrGitFailed, strings.Join(args, " "),
			strings.TrimSpace(string(out)))
	}

	return string(out), nil
}
