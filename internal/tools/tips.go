package tools

import (
	"fmt"
	"strings"
)

// searchTips derives advisory hints from the query, scopes and result
// counts. Tips never change the result data and never fail a call.
func searchTips(in searchInput, scopes []string, counts map[string]int) []string {
	var tips []string

	total := 0
	for _, n := range counts {
		total += n
	}

	scopeSet := make(map[string]bool, len(scopes))
	for _, sc := range scopes {
		scopeSet[sc] = true
	}

	lower := strings.ToLower(in.Query)

	// Keyword triggers.
	switch {
	case strings.Contains(lower, "import") && !scopeSet["code"]:
		tips = append(tips, "import-related queries usually work best with scope [code]; try search_dependencies for graph questions")
	case (strings.Contains(lower, "why") || strings.Contains(lower, "decision")) && !scopeSet["decisions"]:
		tips = append(tips, `add "decisions" to scope to search recorded decisions`)
	case (strings.Contains(lower, "fail") || strings.Contains(lower, "error")) && !scopeSet["failures"]:
		tips = append(tips, `add "failures" to scope to search recorded failed approaches`)
	}

	// Result-count heuristics.
	if total == 0 {
		tips = append(tips, "no results; try a shorter or less specific query, or widen scope")
	}

	effectiveLimit := in.Limit
	if effectiveLimit == 0 {
		effectiveLimit = searchDefaultLimit
	}

	if effectiveLimit > searchMaxLimit {
		effectiveLimit = searchMaxLimit
	}

	if counts["code"] >= effectiveLimit {
		tips = append(tips, "code results hit the limit; narrow the query or raise limit (max 100)")
	}

	if n := counts["symbols"]; n >= searchDefaultLimit && len(in.Filters.Kinds) == 0 {
		tips = append(tips, fmt.Sprintf("%d symbol matches; filter with filters.kinds (e.g. [\"function\"]) to narrow", n))
	}

	// Missing-filter heuristics.
	if scopeSet["patterns"] && in.Filters.PatternType == "" {
		tips = append(tips, `set filters.pattern_type (e.g. "api:handler") for precise pattern lookup`)
	}

	return tips
}
