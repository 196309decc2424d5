package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/kotadb/kotadb/internal/storage"
)

// Unified search bounds.
const (
	searchMaxLimit         = 100
	searchDefaultLimit     = 20
	defaultContextLines    = 3
	maxContextLines        = 10
	compactSnippetMaxChars = 120
)

var validScopes = map[string]bool{
	"code":      true,
	"symbols":   true,
	"decisions": true,
	"patterns":  true,
	"failures":  true,
}

// searchInput is the decoded search tool payload.
type searchInput struct {
	Query        string        `json:"query"`
	Scope        []string      `json:"scope"`
	Filters      searchFilters `json:"filters"`
	Limit        int           `json:"limit"`
	Output       string        `json:"output"`
	ContextLines *int          `json:"context_lines"`
}

// searchFilters carries scope-specific filters; irrelevant fields are
// silently ignored by scopes that do not use them.
type searchFilters struct {
	Kinds        []string `json:"kinds"`
	ExportedOnly bool     `json:"exported_only"`
	PatternType  string   `json:"pattern_type"`
	FilePath     string   `json:"file_path"`
	Repository   string   `json:"repository"`
}

// snippetLine is one line of a snippet window.
type snippetLine struct {
	Line  int    `json:"line"`
	Text  string `json:"text"`
	Match bool   `json:"match,omitempty"`
}

// codeSnippet is one code match in snippet output mode.
type codeSnippet struct {
	Path  string        `json:"path"`
	Lines []snippetLine `json:"lines"`
}

func (c *catalog) handleSearch(ctx context.Context, args json.RawMessage) (any, error) {
	in, err := decode[searchInput](args)
	if err != nil {
		return nil, err
	}

	scopes := in.Scope
	if len(scopes) == 0 {
		scopes = []string{"code", "symbols"}
	}

	for _, sc := range scopes {
		if !validScopes[sc] {
			return nil, fmt.Errorf("%w: unknown scope %q", ErrInvalidParams, sc)
		}
	}

	limit := in.Limit
	if limit == 0 {
		limit = searchDefaultLimit
	}

	if limit > searchMaxLimit {
		limit = searchMaxLimit
	}

	contextLines := defaultContextLines
	if in.ContextLines != nil {
		contextLines = *in.ContextLines
	}

	if contextLines < 0 || contextLines > maxContextLines {
		return nil, fmt.Errorf("%w: context_lines must be between 0 and %d", ErrInvalidParams, maxContextLines)
	}

	output := in.Output
	if output == "" {
		if len(scopes) == 1 && scopes[0] == "code" {
			output = "compact"
		} else {
			output = "full"
		}
	}

	repoID, err := c.resolveRepo(ctx, in.Filters.Repository, false)
	if err != nil {
		return nil, err
	}

	results := make(map[string]any, len(scopes))
	counts := make(map[string]int, len(scopes))

	var mu sync.Mutex

	p := pool.New().WithContext(ctx).WithCancelOnError()

	for _, sc := range scopes {
		p.Go(func(ctx context.Context) error {
			list, n, scopeErr := c.searchScope(ctx, sc, in, repoID, limit, output, contextLines)
			if scopeErr != nil {
				return scopeErr
			}

			mu.Lock()
			results[sc] = list
			counts[sc] = n
			mu.Unlock()

			return nil
		})
	}

	err = p.Wait()
	if err != nil {
		return nil, err
	}

	total := 0
	for _, n := range counts {
		total += n
	}

	response := map[string]any{
		"results": results,
		"counts": map[string]any{
			"total":     total,
			"per_scope": counts,
		},
	}

	tips := searchTips(in, scopes, counts)
	if len(tips) > 0 {
		response["tips"] = tips
	}

	return response, nil
}

// searchScope runs one scope's sub-query and shapes its output.
func (c *catalog) searchScope(ctx context.Context, scope string, in searchInput, repoID string, limit int, output string, contextLines int) (any, int, error) {
	switch scope {
	case "code":
		matches, err := c.deps.Store.SearchFiles(ctx, in.Query, repoID, limit)
		if err != nil {
			return nil, 0, err
		}

		return shapeCodeResults(matches, in.Query, output, contextLines), len(matches), nil
	case "symbols":
		hits, err := c.deps.Store.SearchSymbolHits(ctx, in.Query, in.Filters.Kinds, in.Filters.ExportedOnly, repoID, limit)
		if err != nil {
			return nil, 0, err
		}

		return shapeSymbolResults(hits, output), len(hits), nil
	case "decisions":
		decisions, err := c.deps.Store.SearchDecisions(ctx, in.Query, repoID, limit)
		if err != nil {
			return nil, 0, err
		}

		return decisions, len(decisions), nil
	case "patterns":
		patterns, err := c.deps.Store.SearchPatterns(ctx, in.Filters.PatternType, in.Filters.FilePath, repoID, limit)
		if err != nil {
			return nil, 0, err
		}

		// Without a type filter, fall back to matching the query against
		// pattern descriptions.
		if in.Filters.PatternType == "" {
			patterns = filterPatterns(patterns, in.Query)
		}

		return patterns, len(patterns), nil
	case "failures":
		failures, err := c.deps.Store.SearchFailures(ctx, in.Query, repoID, limit)
		if err != nil {
			return nil, 0, err
		}

		return failures, len(failures), nil
	default:
		return nil, 0, fmt.Errorf("%w: unknown scope %q", ErrInvalidParams, scope)
	}
}

// shapeCodeResults applies the output mode to code matches.
func shapeCodeResults(matches []storage.FileMatch, term, output string, contextLines int) any {
	switch output {
	case "paths":
		paths := make([]string, 0, len(matches))
		for _, m := range matches {
			paths = append(paths, m.Path)
		}

		return paths
	case "snippet":
		snippets := make([]codeSnippet, 0, len(matches))
		for _, m := range matches {
			snippets = append(snippets, codeSnippet{
				Path:  m.Path,
				Lines: snippetWindow(m.Content, term, contextLines),
			})
		}

		return snippets
	case "compact":
		out := make([]map[string]any, 0, len(matches))
		for _, m := range matches {
			entry := map[string]any{"path": m.Path, "language": m.Language}

			if line := firstMatchLine(m.Content, term); line != "" {
				if len(line) > compactSnippetMaxChars {
					line = line[:compactSnippetMaxChars]
				}

				entry["match"] = strings.TrimSpace(line)
			}

			out = append(out, entry)
		}

		return out
	default: // full
		out := make([]map[string]any, 0, len(matches))
		for _, m := range matches {
			out = append(out, map[string]any{
				"path":         m.Path,
				"language":     m.Language,
				"size":         m.Size,
				"indexed_at":   m.IndexedAt,
				"content_hash": m.ContentHash,
				"path_match":   m.PathMatch,
			})
		}

		return out
	}
}

// shapeSymbolResults applies the output mode to symbol hits.
func shapeSymbolResults(hits []storage.SymbolHit, output string) any {
	if output == "paths" {
		paths := make([]string, 0, len(hits))
		for _, h := range hits {
			paths = append(paths, h.FilePath)
		}

		return paths
	}

	out := make([]map[string]any, 0, len(hits))

	for _, h := range hits {
		entry := map[string]any{
			"name": h.Name,
			"kind": h.Kind,
			"location": map[string]any{
				"file":       h.FilePath,
				"line_start": h.LineStart,
				"line_end":   h.LineEnd,
			},
		}

		if output == "full" && h.Signature != "" {
			entry["signature"] = h.Signature
		}

		out = append(out, entry)
	}

	return out
}

// snippetWindow returns every matching line with its surrounding context,
// truncated at file bounds. Overlapping windows are merged.
func snippetWindow(content, term string, contextLines int) []snippetLine {
	lines := strings.Split(content, "\n")
	lower := strings.ToLower(term)

	include := make(map[int]bool)
	match := make(map[int]bool)

	for i, line := range lines {
		if !strings.Contains(strings.ToLower(line), lower) {
			continue
		}

		match[i] = true

		for j := i - contextLines; j <= i+contextLines; j++ {
			if j >= 0 && j < len(lines) {
				include[j] = true
			}
		}
	}

	out := make([]snippetLine, 0, len(include))

	for i, line := range lines {
		if include[i] {
			out = append(out, snippetLine{Line: i + 1, Text: line, Match: match[i]})
		}
	}

	return out
}

// firstMatchLine returns the first content line containing term, or "".
func firstMatchLine(content, term string) string {
	lower := strings.ToLower(term)

	for _, line := range strings.Split(content, "\n") {
		if strings.Contains(strings.ToLower(line), lower) {
			return line
		}
	}

	return ""
}

// filterPatterns keeps patterns whose type or description mentions the query.
func filterPatterns(patterns []storage.Pattern, term string) []storage.Pattern {
	lower := strings.ToLower(term)

	out := make([]storage.Pattern, 0, len(patterns))

	for _, p := range patterns {
		if strings.Contains(strings.ToLower(p.PatternType), lower) ||
			strings.Contains(strings.ToLower(p.Description), lower) {
			out = append(out, p)
		}
	}

	return out
}
