package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kotadb/kotadb/internal/extract"
	"github.com/kotadb/kotadb/internal/storage"
)

func newIndexer(t *testing.T) (*Indexer, *storage.Store) {
	t.Helper()

	s, err := storage.Open(storage.Options{Path: filepath.Join(t.TempDir(), "kota.db")})
	require.NoError(t, err)

	t.Cleanup(func() { _ = s.Close() })

	return New(s, nil, extract.Options{}), s
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()

	for path, content := range files {
		full := filepath.Join(root, filepath.FromSlash(path))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

func TestIndexFull(t *testing.T) {
	t.Parallel()

	ix, s := newIndexer(t)
	ctx := context.Background()

	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"src/auth/login.ts":   "import {verify} from './session'\n\nexport function login(u: string) {\n  return verify(u)\n}\n",
		"src/auth/session.ts": "export function verify(u: string) {\n  return u !== ''\n}\n",
		"notes.txt":           "not indexable\n",
	})

	repoID, stats, err := ix.IndexFull(ctx, root, "acme/web")
	require.NoError(t, err)
	require.NotEmpty(t, repoID)

	assert.Equal(t, 2, stats.FilesIndexed, "unsupported files are skipped")
	assert.GreaterOrEqual(t, stats.SymbolsExtracted, 2)
	assert.GreaterOrEqual(t, stats.ReferencesExtracted, 1)

	// The import edge resolved against the repository file set.
	edges, err := s.DependencyEdges(ctx, repoID, nil)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "src/auth/login.ts", edges[0].SourcePath)
	assert.Equal(t, "src/auth/session.ts", edges[0].TargetPath)

	repo, err := s.GetRepositoryByName(ctx, "acme/web")
	require.NoError(t, err)
	assert.NotEmpty(t, repo.LastIndexedAt)
}

func TestIndexFull_DerivesLocalName(t *testing.T) {
	t.Parallel()

	ix, s := newIndexer(t)
	ctx := context.Background()

	root := t.TempDir()
	writeTree(t, root, map[string]string{"main.py": "def main():\n    pass\n"})

	_, _, err := ix.IndexFull(ctx, root, "")
	require.NoError(t, err)

	_, err = s.GetRepositoryByName(ctx, "local/"+filepath.Base(root))
	assert.NoError(t, err, "non-git trees get a local/<dir> name")
}

func TestIndexIncremental(t *testing.T) {
	t.Parallel()

	ix, s := newIndexer(t)
	ctx := context.Background()

	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"src/a.ts": "export const a = 1\n",
		"src/b.ts": "export const b = 2\n",
	})

	repoID, _, err := ix.IndexFull(ctx, root, "acme/web")
	require.NoError(t, err)

	// Re-index with one file changed and one untouched.
	writeTree(t, root, map[string]string{"src/a.ts": "export const a = 10\n"})

	stats, err := ix.IndexIncremental(ctx, repoID, root, []string{"src/a.ts", "src/b.ts"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesIndexed)
	assert.Equal(t, 1, stats.FilesSkipped, "unchanged hash short-circuits extraction")

	file, err := s.GetFileByPath(ctx, repoID, "src/a.ts")
	require.NoError(t, err)
	assert.Contains(t, file.Content, "a = 10")
}

func TestIndexIncremental_Deletions(t *testing.T) {
	t.Parallel()

	ix, s := newIndexer(t)
	ctx := context.Background()

	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"src/a.ts": "import {b} from './b'\n",
		"src/b.ts": "export const b = 2\n",
	})

	repoID, _, err := ix.IndexFull(ctx, root, "acme/web")
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "src/b.ts")))

	stats, err := ix.IndexIncremental(ctx, repoID, root, nil, []string{"src/b.ts"})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesDeleted)

	_, err = s.GetFileByPath(ctx, repoID, "src/b.ts")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// The import from a.ts is unresolved again.
	edges, err := s.DependencyEdges(ctx, repoID, nil)
	require.NoError(t, err)
	assert.Empty(t, edges)
}
