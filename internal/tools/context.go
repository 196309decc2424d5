package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kotadb/kotadb/pkg/levenshtein"
)

// Task context aggregation and implementation-spec validation.

// taskContext is the generate_task_context payload handed to agents.
type taskContext struct {
	Task      string           `json:"task"`
	Domain    string           `json:"domain,omitempty"`
	KeyFiles  []map[string]any `json:"key_files,omitempty"`
	Decisions []map[string]any `json:"decisions,omitempty"`
	Patterns  []map[string]any `json:"patterns,omitempty"`
	Failures  []map[string]any `json:"failures,omitempty"`
	FileGraph any              `json:"file_graph,omitempty"`
	Message   string           `json:"message,omitempty"`
}

func (c *catalog) handleGenerateTaskContext(ctx context.Context, args json.RawMessage) (any, error) {
	in, err := decode[struct {
		Task     string `json:"task"`
		Domain   string `json:"domain"`
		FilePath string `json:"file_path"`
		Limit    int    `json:"limit"`
	}](args)
	if err != nil {
		return nil, err
	}

	if in.Limit == 0 {
		in.Limit = 5
	}

	repoID, err := c.resolveRepo(ctx, "", false)
	if err != nil {
		return nil, err
	}

	out := taskContext{Task: in.Task, Domain: in.Domain}

	if repoID == "" {
		out.Message = "no indexed repository; context limited to memory"
	}

	if in.Domain != "" && repoID != "" {
		keyFiles, kfErr := c.deps.Query.DomainKeyFiles(ctx, repoID, in.Domain, in.Limit)
		if kfErr != nil {
			return nil, kfErr
		}

		for _, kf := range keyFiles {
			out.KeyFiles = append(out.KeyFiles, map[string]any{
				"path":       kf.Path,
				"dependents": kf.Dependents,
			})
		}
	}

	decisions, err := c.deps.Store.SearchDecisions(ctx, in.Task, repoID, in.Limit)
	if err != nil {
		return nil, err
	}

	for _, d := range decisions {
		out.Decisions = append(out.Decisions, map[string]any{
			"title":    d.Title,
			"decision": d.Decision,
			"scope":    d.Scope,
		})
	}

	failures, err := c.deps.Store.SearchFailures(ctx, in.Task, repoID, in.Limit)
	if err != nil {
		return nil, err
	}

	for _, f := range failures {
		out.Failures = append(out.Failures, map[string]any{
			"title":          f.Title,
			"approach":       f.Approach,
			"failure_reason": f.FailureReason,
		})
	}

	patterns, err := c.deps.Store.SearchPatterns(ctx, "", "", repoID, in.Limit)
	if err != nil {
		return nil, err
	}

	for _, p := range filterPatterns(patterns, in.Task) {
		out.Patterns = append(out.Patterns, map[string]any{
			"pattern_type": p.PatternType,
			"description":  p.Description,
			"file_path":    p.FilePath,
		})
	}

	if in.FilePath != "" && repoID != "" {
		deps, depErr := c.deps.Query.Dependencies(ctx, repoID, in.FilePath,
			"dependents", 1, true, nil)
		if depErr == nil {
			out.FileGraph = map[string]any{
				"file_path":  in.FilePath,
				"dependents": deps.Direct,
			}
		}
	}

	return out, nil
}

// requiredSpecSections are the headings an implementation spec must carry.
var requiredSpecSections = []string{"problem", "approach", "files", "validation"}

// specFileRef matches backtick-quoted repository paths inside a spec body.
var specFileRef = regexp.MustCompile("`([A-Za-z0-9_./-]+\\.[A-Za-z0-9]+)`")

// specValidation is the validate_implementation_spec payload.
type specValidation struct {
	Valid       bool              `json:"valid"`
	Issues      []string          `json:"issues"`
	StalePaths  []string          `json:"stale_paths,omitempty"`
	Suggestions map[string]string `json:"suggestions,omitempty"`
}

func (c *catalog) handleValidateImplementationSpec(ctx context.Context, args json.RawMessage) (any, error) {
	in, err := decode[struct {
		SpecPath string `json:"spec_path"`
		Content  string `json:"content"`
	}](args)
	if err != nil {
		return nil, err
	}

	content := in.Content

	if content == "" {
		if in.SpecPath == "" {
			return nil, fmt.Errorf("%w: one of spec_path or content is required", ErrInvalidParams)
		}

		path := in.SpecPath
		if !filepath.IsAbs(path) {
			path = filepath.Join(c.deps.Root, path)
		}

		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil, fmt.Errorf("read spec: %w", readErr)
		}

		content = string(data)
	}

	result := specValidation{Issues: []string{}}
	lower := strings.ToLower(content)

	for _, section := range requiredSpecSections {
		if !strings.Contains(lower, "# "+section) && !strings.Contains(lower, "## "+section) {
			result.Issues = append(result.Issues,
				fmt.Sprintf("missing section %q; add a \"## %s\" heading", section, titleCase(section)))
		}
	}

	repoID, err := c.resolveRepo(ctx, "", false)
	if err != nil {
		return nil, err
	}

	if repoID != "" {
		for _, m := range specFileRef.FindAllStringSubmatch(content, -1) {
			ref := m[1]

			id, resErr := c.deps.Query.ResolveFilePath(ctx, repoID, ref)
			if resErr != nil {
				return nil, resErr
			}

			if id == "" && looksLikeSourcePath(ref) {
				result.StalePaths = append(result.StalePaths, ref)
			}
		}

		if len(result.StalePaths) > 0 {
			result.Issues = append(result.Issues,
				fmt.Sprintf("%d referenced path(s) not in the index; re-check file names or reindex", len(result.StalePaths)))

			suggestions, sugErr := c.suggestPaths(ctx, repoID, result.StalePaths)
			if sugErr != nil {
				return nil, sugErr
			}

			result.Suggestions = suggestions
		}
	}

	result.Valid = len(result.Issues) == 0

	return result, nil
}

// maxSuggestionDistance caps how dissimilar a "did you mean" path may be.
const maxSuggestionDistance = 8

// suggestPaths maps each stale path to the closest indexed path by edit
// distance, when one is close enough to be a plausible rename or typo.
func (c *catalog) suggestPaths(ctx context.Context, repoID string, stale []string) (map[string]string, error) {
	summaries, err := c.deps.Store.ListFileSummaries(ctx, repoID)
	if err != nil {
		return nil, err
	}

	lev := &levenshtein.Context{}
	suggestions := make(map[string]string)

	for _, ref := range stale {
		best := ""
		bestDist := maxSuggestionDistance + 1

		for _, fsum := range summaries {
			d := lev.Distance(ref, fsum.Path)
			if d < bestDist {
				best = fsum.Path
				bestDist = d
			}
		}

		if best != "" {
			suggestions[ref] = best
		}
	}

	if len(suggestions) == 0 {
		return nil, nil
	}

	return suggestions, nil
}

func titleCase(s string) string {
	if s == "" {
		return s
	}

	return strings.ToUpper(s[:1]) + s[1:]
}

// looksLikeSourcePath keeps stale-path checks to indexable source files.
func looksLikeSourcePath(path string) bool {
	switch filepath.Ext(path) {
	case ".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs", ".mts", ".cts", ".py", ".pyi", ".go":
		return strings.Contains(path, "/")
	default:
		return false
	}
}
