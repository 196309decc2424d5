package query

import (
	"sort"
	"strings"

	"github.com/kotadb/kotadb/internal/storage"
)

// Traversal depth bounds.
const (
	MinDepth = 1
	MaxDepth = 5
)

// Directions for dependency traversal.
const (
	DirectionDependents   = "dependents"
	DirectionDependencies = "dependencies"
)

// testPathMarkers identify test files for the include_tests filter.
var testPathMarkers = []string{".test.", ".spec.", "/tests/", "/__tests__/"}

// IsTestPath reports whether a path looks like a test file.
func IsTestPath(path string) bool {
	slashed := "/" + path

	for _, marker := range testPathMarkers {
		if strings.Contains(slashed, marker) {
			return true
		}
	}

	return false
}

// Traversal is the result of a bounded BFS over the file dependency graph.
type Traversal struct {
	// Direct holds depth-1 neighbors, lexicographically ordered.
	Direct []string `json:"direct"`

	// Indirect maps each depth from 2 up to the bound onto its paths.
	Indirect map[int][]string `json:"indirect,omitempty"`

	// Cycles lists each detected cycle as an ordered path whose first and
	// last elements are equal.
	Cycles [][]string `json:"cycles"`
}

// Traverse walks the adjacency defined by edges from start in the given
// direction, bounded by depth. Cycles are detected against the BFS path to
// each node: an edge back onto that path records the cycle and prunes the
// branch. When includeTests is false, test paths are filtered from results
// but still traversed.
func Traverse(edges []storage.Edge, start, direction string, depth int, includeTests bool) Traversal {
	adj := make(map[string][]string)

	for _, e := range edges {
		if direction == DirectionDependents {
			adj[e.TargetPath] = append(adj[e.TargetPath], e.SourcePath)
		} else {
			adj[e.SourcePath] = append(adj[e.SourcePath], e.TargetPath)
		}
	}

	for k := range adj {
		sort.Strings(adj[k])
	}

	type queued struct {
		node  string
		path  []string
		depth int
	}

	result := Traversal{
		Direct:   []string{},
		Indirect: make(map[int][]string),
		Cycles:   [][]string{},
	}

	visited := map[string]bool{start: true}
	seenCycles := map[string]bool{}

	queue := []queued{{node: start, path: []string{start}, depth: 0}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if cur.depth == depth {
			continue
		}

		onPath := make(map[string]int, len(cur.path))
		for i, p := range cur.path {
			onPath[p] = i
		}

		for _, next := range adj[cur.node] {
			if idx, ok := onPath[next]; ok {
				cycle := append(append([]string{}, cur.path[idx:]...), next)

				key := strings.Join(normalizeCycle(cycle), "\x00")
				if !seenCycles[key] {
					seenCycles[key] = true

					result.Cycles = append(result.Cycles, cycle)
				}

				continue
			}

			if visited[next] {
				continue
			}

			visited[next] = true

			nextDepth := cur.depth + 1

			if includeTests || !IsTestPath(next) {
				if nextDepth == 1 {
					result.Direct = append(result.Direct, next)
				} else {
					result.Indirect[nextDepth] = append(result.Indirect[nextDepth], next)
				}
			}

			queue = append(queue, queued{
				node:  next,
				path:  append(append([]string{}, cur.path...), next),
				depth: nextDepth,
			})
		}
	}

	sort.Strings(result.Direct)

	for d := range result.Indirect {
		sort.Strings(result.Indirect[d])
	}

	if len(result.Indirect) == 0 {
		result.Indirect = nil
	}

	return result
}

// normalizeCycle rotates a cycle to start at its smallest element so the
// same loop reached from different entry points deduplicates. The closing
// repeat of the first element is dropped before rotation.
func normalizeCycle(cycle []string) []string {
	if len(cycle) < 2 {
		return cycle
	}

	body := cycle[:len(cycle)-1]

	minIdx := 0
	for i, p := range body {
		if p < body[minIdx] {
			minIdx = i
		}
	}

	out := make([]string, 0, len(body))
	out = append(out, body[minIdx:]...)
	out = append(out, body[:minIdx]...)

	return out
}
