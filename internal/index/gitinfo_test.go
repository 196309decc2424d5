package index

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFullNameFromRemote(t *testing.T) {
	t.Parallel()

	cases := []struct {
		url  string
		want string
	}{
		{"git@github.com:acme/web.git", "acme/web"},
		{"git@github.com:acme/web", "acme/web"},
		{"https://github.com/acme/web.git", "acme/web"},
		{"https://github.com/acme/web", "acme/web"},
		{"http://git.internal/team/service", "team/service"},
		{"ssh://git@github.com/acme/web.git", "acme/web"},
		{"https://gitlab.example.com/group/sub/project.git", "sub/project"},
		{"/srv/repos/web", ""},
		{"", ""},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, FullNameFromRemote(tc.url), tc.url)
	}
}

func TestReadGitInfo_PlainDirectory(t *testing.T) {
	t.Parallel()

	info := ReadGitInfo(t.TempDir())
	assert.Equal(t, GitInfo{}, info, "non-git trees index without metadata")
}

func TestReadGitInfo_Repository(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = root

		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}

	run("init", "-b", "main")
	run("config", "user.email", "dev@example.com")
	run("config", "user.name", "Dev")
	run("remote", "add", "origin", "git@github.com:acme/web.git")

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("a\n"), 0o644))
	run("add", "-A")
	run("commit", "-m", "initial")

	info := ReadGitInfo(root)
	assert.Equal(t, "git@github.com:acme/web.git", info.RemoteURL)
	assert.Equal(t, "main", info.Branch)
	assert.Len(t, info.Commit, 40)

	// Subdirectories resolve to the same repository.
	sub := filepath.Join(root, "nested")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	assert.Equal(t, info.RemoteURL, ReadGitInfo(sub).RemoteURL)
}

func TestRefExists(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = root

		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}

	run("init", "-b", "main")
	run("config", "user.email", "dev@example.com")
	run("config", "user.name", "Dev")

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("a\n"), 0o644))
	run("add", "-A")
	run("commit", "-m", "initial")
	run("branch", "develop")
	run("tag", "v1.0.0")

	assert.True(t, RefExists(root, "main"))
	assert.True(t, RefExists(root, "develop"))
	assert.True(t, RefExists(root, "v1.0.0"))
	assert.False(t, RefExists(root, "release-9"))
	assert.False(t, RefExists(t.TempDir(), "main"))
}
