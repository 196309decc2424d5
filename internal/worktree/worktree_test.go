package worktree

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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

	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("fixture\n"), 0o644))
	run("add", "-A")
	run("commit", "-m", "initial")

	return root
}

func TestTimestamp_FilesystemSafe(t *testing.T) {
	t.Parallel()

	m := NewManager(t.TempDir(), "", nil)
	m.now = func() time.Time {
		return time.Date(2026, 8, 24, 10, 30, 45, 0, time.UTC)
	}

	assert.Equal(t, "2026-08-24T10-30-45Z", m.timestamp())
}

func TestCreate_NamesAndBranch(t *testing.T) {
	t.Parallel()

	root := initRepo(t)
	m := NewManager(root, "develop", nil)
	m.now = func() time.Time {
		return time.Date(2026, 8, 24, 10, 30, 45, 0, time.UTC)
	}

	wt, err := m.Create(context.Background(), 42)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, ".worktrees", "42-2026-08-24T10-30-45Z"), wt.Path)
	assert.Equal(t, "automation/42-2026-08-24T10-30-45Z", wt.Branch)
	assert.Equal(t, 42, wt.Issue)

	// The worktree is a checkout of the base branch.
	_, err = os.Stat(filepath.Join(wt.Path, "README.md"))
	assert.NoError(t, err)

	exists, err := m.Exists(context.Background(), wt.Path)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRemove(t *testing.T) {
	t.Parallel()

	root := initRepo(t)
	m := NewManager(root, "develop", nil)

	wt, err := m.Create(context.Background(), 7)
	require.NoError(t, err)

	require.NoError(t, m.Remove(context.Background(), wt, true, true))

	exists, err := m.Exists(context.Background(), wt.Path)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = os.Stat(wt.Path)
	assert.True(t, os.IsNotExist(err))

	// Removing again is a no-op.
	assert.NoError(t, m.Remove(context.Background(), wt, true, false))
}

func TestList_IncludesMainAndWorktrees(t *testing.T) {
	t.Parallel()

	root := initRepo(t)
	m := NewManager(root, "develop", nil)

	wt, err := m.Create(context.Background(), 1)
	require.NoError(t, err)

	paths, err := m.List(context.Background())
	require.NoError(t, err)
	require.Len(t, paths, 2, "main checkout plus one worktree")
	assert.Contains(t, paths, wt.Path)
}

func TestCreate_FailsWithoutBaseBranch(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	cmd := exec.Command("git", "init", "-b", "main")
	cmd.Dir = root
	require.NoError(t, cmd.Run())

	m := NewManager(root, "develop", nil)

	_, err := m.Create(context.Background(), 1)
	assert.ErrorIs(t, err, ErrGitFailed)
}
