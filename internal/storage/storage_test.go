package storage_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kotadb/kotadb/internal/storage"
)

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()

	s, err := storage.Open(storage.Options{Path: filepath.Join(t.TempDir(), "kota.db")})
	require.NoError(t, err)

	t.Cleanup(func() { _ = s.Close() })

	return s
}

func seedRepo(t *testing.T, s *storage.Store) string {
	t.Helper()

	id, err := s.UpsertRepository(context.Background(), "acme/web", "/tmp/acme-web")
	require.NoError(t, err)

	return id
}

func TestUpsertRepository_Idempotent(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.UpsertRepository(ctx, "acme/web", "/old")
	require.NoError(t, err)

	second, err := s.UpsertRepository(ctx, "acme/web", "/new")
	require.NoError(t, err)

	assert.Equal(t, first, second)

	repo, err := s.GetRepositoryByName(ctx, "acme/web")
	require.NoError(t, err)
	assert.Equal(t, "/new", repo.GitURL)
}

func TestReplaceFile_ReplacesSymbolsAndReferences(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	repoID := seedRepo(t, s)

	file := storage.File{
		RepositoryID: repoID,
		Path:         "src/auth/login.ts",
		Language:     "typescript",
		ContentHash:  "h1",
		Size:         42,
		Content:      "export function login() {}",
	}

	fileID, err := s.ReplaceFile(ctx, file,
		[]storage.Symbol{{Name: "login", Kind: "function", LineStart: 1, LineEnd: 1, Metadata: "{}"}},
		[]storage.Reference{{TargetSymbolName: "hash", ReferenceType: "import", Metadata: "{}"}})
	require.NoError(t, err)

	// Second replace with different extraction results must not accumulate.
	file.ContentHash = "h2"
	file.Content = "export function login() {}\nexport function logout() {}"

	fileID2, err := s.ReplaceFile(ctx, file,
		[]storage.Symbol{
			{Name: "login", Kind: "function", LineStart: 1, LineEnd: 1, Metadata: "{}"},
			{Name: "logout", Kind: "function", LineStart: 2, LineEnd: 2, Metadata: "{}"},
		},
		nil)
	require.NoError(t, err)
	assert.Equal(t, fileID, fileID2, "replacing a file keeps its identity")

	syms, err := s.SymbolsByFile(ctx, fileID)
	require.NoError(t, err)
	assert.Len(t, syms, 2)

	refs, err := s.ReferencesByFile(ctx, fileID)
	require.NoError(t, err)
	assert.Empty(t, refs, "old references must be gone after replace")

	got, err := s.GetFileByPath(ctx, repoID, "src/auth/login.ts")
	require.NoError(t, err)
	assert.Equal(t, "h2", got.ContentHash)
	assert.Contains(t, got.Content, "logout", "content round-trips through compression")
}

func TestDeleteFileByPath_CascadesAndJournals(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	repoID := seedRepo(t, s)

	fileID, err := s.ReplaceFile(ctx, storage.File{
		RepositoryID: repoID, Path: "a.ts", Language: "typescript", ContentHash: "h", Content: "x",
	}, []storage.Symbol{{Name: "a", Kind: "function", LineStart: 1, LineEnd: 1, Metadata: "{}"}}, nil)
	require.NoError(t, err)

	err = s.DeleteFileByPath(ctx, repoID, "a.ts")
	require.NoError(t, err)

	_, err = s.GetFileByID(ctx, fileID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	syms, err := s.SymbolsByFile(ctx, fileID)
	require.NoError(t, err)
	assert.Empty(t, syms, "symbols cascade with their file")

	deletions, err := s.PendingDeletions(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, deletions)
	assert.Equal(t, "files", deletions[0].Table)
	assert.Equal(t, fileID, deletions[0].RowID)
}

func TestFileHashes(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	repoID := seedRepo(t, s)

	for _, f := range []struct{ path, hash string }{
		{"a.ts", "ha"}, {"b.ts", "hb"},
	} {
		_, err := s.ReplaceFile(ctx, storage.File{
			RepositoryID: repoID, Path: f.path, Language: "typescript", ContentHash: f.hash, Content: "x",
		}, nil, nil)
		require.NoError(t, err)
	}

	hashes, err := s.FileHashes(ctx, repoID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a.ts": "ha", "b.ts": "hb"}, hashes)
}

func TestSearchFiles_PathMatchesRankFirst(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	repoID := seedRepo(t, s)

	_, err := s.ReplaceFile(ctx, storage.File{
		RepositoryID: repoID, Path: "src/auth/session.ts", Language: "typescript",
		ContentHash: "h1", Content: "const x = 1",
	}, nil, nil)
	require.NoError(t, err)

	_, err = s.ReplaceFile(ctx, storage.File{
		RepositoryID: repoID, Path: "src/util/strings.ts", Language: "typescript",
		ContentHash: "h2", Content: "// session helpers live elsewhere",
	}, nil, nil)
	require.NoError(t, err)

	matches, err := s.SearchFiles(ctx, "session", repoID, 10)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	assert.Equal(t, "src/auth/session.ts", matches[0].Path)
	assert.True(t, matches[0].PathMatch)
	assert.False(t, matches[1].PathMatch)
}

func TestSearchSymbols_Filters(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	repoID := seedRepo(t, s)

	_, err := s.ReplaceFile(ctx, storage.File{
		RepositoryID: repoID, Path: "svc.ts", Language: "typescript", ContentHash: "h", Content: "x",
	}, []storage.Symbol{
		{Name: "createUser", Kind: "function", LineStart: 1, LineEnd: 3, Metadata: `{"is_exported":true}`},
		{Name: "createSession", Kind: "function", LineStart: 5, LineEnd: 9, Metadata: `{"is_exported":false}`},
		{Name: "CreateOpts", Kind: "interface", LineStart: 11, LineEnd: 14, Metadata: `{"is_exported":true}`},
	}, nil)
	require.NoError(t, err)

	all, err := s.SearchSymbols(ctx, "create", nil, false, repoID, 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	funcs, err := s.SearchSymbols(ctx, "create", []string{"function"}, false, repoID, 10)
	require.NoError(t, err)
	assert.Len(t, funcs, 2)

	exported, err := s.SearchSymbols(ctx, "create", []string{"function"}, true, repoID, 10)
	require.NoError(t, err)
	require.Len(t, exported, 1)
	assert.Equal(t, "createUser", exported[0].Name)

	hits, err := s.SearchSymbolHits(ctx, "create", nil, false, repoID, 10)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "svc.ts", hits[0].FilePath)
}

func TestSearchSymbols_WildcardsMatchLiterally(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	repoID := seedRepo(t, s)

	_, err := s.ReplaceFile(ctx, storage.File{
		RepositoryID: repoID, Path: "util.py", Language: "python", ContentHash: "h", Content: "x",
	}, []storage.Symbol{
		{Name: "do_work", Kind: "function", LineStart: 1, LineEnd: 2, Metadata: "{}"},
		{Name: "doXwork", Kind: "function", LineStart: 4, LineEnd: 5, Metadata: "{}"},
	}, nil)
	require.NoError(t, err)

	// "_" is a literal underscore, not a single-character wildcard.
	syms, err := s.SearchSymbols(ctx, "do_", nil, false, repoID, 10)
	require.NoError(t, err)
	require.Len(t, syms, 1)
	assert.Equal(t, "do_work", syms[0].Name)

	// "%" never matches everything.
	syms, err = s.SearchSymbols(ctx, "%", nil, false, repoID, 10)
	require.NoError(t, err)
	assert.Empty(t, syms)
}

func TestDependencyEdges_OnlyResolved(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	repoID := seedRepo(t, s)

	fileID, err := s.ReplaceFile(ctx, storage.File{
		RepositoryID: repoID, Path: "a.ts", Language: "typescript", ContentHash: "h", Content: "x",
	}, nil, []storage.Reference{
		{ReferenceType: "import", Metadata: "{}"},
		{ReferenceType: "import", Metadata: "{}"},
	})
	require.NoError(t, err)

	refs, err := s.ReferencesByFile(ctx, fileID)
	require.NoError(t, err)
	require.Len(t, refs, 2)

	err = s.UpdateReferenceTargets(ctx, map[string]string{refs[0].ID: "b.ts"})
	require.NoError(t, err)

	edges, err := s.DependencyEdges(ctx, repoID, nil)
	require.NoError(t, err)
	require.Len(t, edges, 1, "unresolved references stay out of the graph")
	assert.Equal(t, storage.Edge{SourcePath: "a.ts", TargetPath: "b.ts", Type: "import"}, edges[0])
}

func TestMemory_DecisionSearchRanked(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.RecordDecision(ctx, storage.Decision{
		Title:    "Use sqlite WAL mode",
		Context:  "Concurrent readers during indexing",
		Decision: "Open the database with journal_mode=WAL",
		Scope:    "architecture",
	})
	require.NoError(t, err)

	_, err = s.RecordDecision(ctx, storage.Decision{
		Title:    "Pin node version",
		Context:  "CI flakiness",
		Decision: "Use .nvmrc",
		Scope:    "convention",
	})
	require.NoError(t, err)

	hits, err := s.SearchDecisions(ctx, "sqlite", "", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Use sqlite WAL mode", hits[0].Title)
	assert.GreaterOrEqual(t, hits[0].Relevance, 0.0)
}

func TestUpsertPattern_UniqueByType(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.UpsertPattern(ctx, storage.Pattern{
		PatternType: "auth:session-guard", Description: "wrap handlers in requireSession",
	})
	require.NoError(t, err)

	second, err := s.UpsertPattern(ctx, storage.Pattern{
		PatternType: "auth:session-guard", Description: "updated description",
	})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	patterns, err := s.SearchPatterns(ctx, "auth:", "", "", 0)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, "updated description", patterns[0].Description)
}

func TestSearchPatterns_ZeroLimitMeansUnlimited(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		_, err := s.UpsertPattern(ctx, storage.Pattern{
			PatternType: "web:" + name, Description: "p",
		})
		require.NoError(t, err)
	}

	patterns, err := s.SearchPatterns(ctx, "web:", "", "", 0)
	require.NoError(t, err)
	assert.Len(t, patterns, 3)
}

func TestSearchPatterns_PrefixWildcardsMatchLiterally(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	for _, pt := range []string{"auth_guard", "authXguard", "auth%guard"} {
		_, err := s.UpsertPattern(ctx, storage.Pattern{PatternType: pt, Description: "p"})
		require.NoError(t, err)
	}

	patterns, err := s.SearchPatterns(ctx, "auth_", "", "", 0)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, "auth_guard", patterns[0].PatternType)

	patterns, err = s.SearchPatterns(ctx, "auth%", "", "", 0)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, "auth%guard", patterns[0].PatternType)
}

func TestWorkflowContexts_UpsertPerPhase(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	id1, err := s.UpsertWorkflowContext(ctx, "wf-1", "analysis", "first")
	require.NoError(t, err)

	id2, err := s.UpsertWorkflowContext(ctx, "wf-1", "analysis", "second")
	require.NoError(t, err)
	assert.Equal(t, id1, id2, "same workflow and phase share one row")

	_, err = s.UpsertWorkflowContext(ctx, "wf-1", "plan", "plan data")
	require.NoError(t, err)

	all, err := s.WorkflowContexts(ctx, "wf-1", nil)
	require.NoError(t, err)
	require.Len(t, all, 2)

	only, err := s.WorkflowContexts(ctx, "wf-1", []string{"analysis"})
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, "second", only[0].ContextData)

	n, err := s.ClearWorkflowContexts(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestExportHashRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	hash, err := s.ExportHash(ctx, "decisions")
	require.NoError(t, err)
	assert.Empty(t, hash)

	err = s.SetExportHash(ctx, "decisions", "abc123")
	require.NoError(t, err)

	hash, err = s.ExportHash(ctx, "decisions")
	require.NoError(t, err)
	assert.Equal(t, "abc123", hash)
}
