package query_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kotadb/kotadb/internal/query"
	"github.com/kotadb/kotadb/internal/storage"
)

func edge(src, dst string) storage.Edge {
	return storage.Edge{SourcePath: src, TargetPath: dst, Type: "import"}
}

func TestTraverse_DirectDependencies(t *testing.T) {
	t.Parallel()

	edges := []storage.Edge{
		edge("a.ts", "b.ts"),
		edge("a.ts", "c.ts"),
		edge("b.ts", "d.ts"),
	}

	got := query.Traverse(edges, "a.ts", query.DirectionDependencies, 1, true)

	assert.Equal(t, []string{"b.ts", "c.ts"}, got.Direct)
	assert.Nil(t, got.Indirect)
	assert.Empty(t, got.Cycles)
}

func TestTraverse_DependentsDirection(t *testing.T) {
	t.Parallel()

	edges := []storage.Edge{
		edge("a.ts", "b.ts"),
		edge("c.ts", "b.ts"),
	}

	got := query.Traverse(edges, "b.ts", query.DirectionDependents, 1, true)

	assert.Equal(t, []string{"a.ts", "c.ts"}, got.Direct)
}

func TestTraverse_IndirectByDepth(t *testing.T) {
	t.Parallel()

	edges := []storage.Edge{
		edge("a.ts", "b.ts"),
		edge("b.ts", "c.ts"),
		edge("c.ts", "d.ts"),
	}

	got := query.Traverse(edges, "a.ts", query.DirectionDependencies, 3, true)

	assert.Equal(t, []string{"b.ts"}, got.Direct)
	assert.Equal(t, []string{"c.ts"}, got.Indirect[2])
	assert.Equal(t, []string{"d.ts"}, got.Indirect[3])

	// Depth bound prunes the deeper level entirely.
	bounded := query.Traverse(edges, "a.ts", query.DirectionDependencies, 2, true)
	assert.NotContains(t, bounded.Indirect, 3)
}

func TestTraverse_CycleDetection(t *testing.T) {
	t.Parallel()

	edges := []storage.Edge{
		edge("x.ts", "y.ts"),
		edge("y.ts", "x.ts"),
	}

	got := query.Traverse(edges, "x.ts", query.DirectionDependencies, 5, true)

	assert.Equal(t, []string{"y.ts"}, got.Direct)
	assert.Equal(t, [][]string{{"x.ts", "y.ts", "x.ts"}}, got.Cycles)
}

func TestTraverse_SelfImportCycle(t *testing.T) {
	t.Parallel()

	edges := []storage.Edge{edge("a.ts", "a.ts")}

	got := query.Traverse(edges, "a.ts", query.DirectionDependencies, 1, true)

	assert.Empty(t, got.Direct)
	assert.Equal(t, [][]string{{"a.ts", "a.ts"}}, got.Cycles)
}

func TestTraverse_CycleDeduplicatedAcrossRotations(t *testing.T) {
	t.Parallel()

	// a -> b -> c -> b: the b/c loop is reachable twice but reports once.
	edges := []storage.Edge{
		edge("a.ts", "b.ts"),
		edge("b.ts", "c.ts"),
		edge("c.ts", "b.ts"),
	}

	got := query.Traverse(edges, "a.ts", query.DirectionDependencies, 5, true)

	assert.Len(t, got.Cycles, 1)
}

func TestTraverse_TestFilterHidesButTraverses(t *testing.T) {
	t.Parallel()

	edges := []storage.Edge{
		edge("a.ts", "b.test.ts"),
		edge("b.test.ts", "c.ts"),
	}

	got := query.Traverse(edges, "a.ts", query.DirectionDependencies, 2, false)

	assert.Empty(t, got.Direct, "test file filtered from results")
	assert.Equal(t, []string{"c.ts"}, got.Indirect[2], "filtered node still traversed")
}

func TestIsTestPath(t *testing.T) {
	t.Parallel()

	cases := []struct {
		path string
		want bool
	}{
		{"src/auth/login.test.ts", true},
		{"src/auth/login.spec.ts", true},
		{"tests/login.ts", true},
		{"src/__tests__/login.ts", true},
		{"src/auth/login.ts", false},
		{"src/latest/login.ts", false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, query.IsTestPath(tc.path), tc.path)
	}
}

func TestNormalizePath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "src/a.ts", query.NormalizePath("./src/a.ts"))
	assert.Equal(t, "src/a.ts", query.NormalizePath("src\\a.ts"))
	assert.Equal(t, "src/a.ts", query.NormalizePath("/src/a.ts"))
}
