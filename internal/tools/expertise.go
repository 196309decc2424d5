package tools

import (
	"context"
	"encoding/json"

	"github.com/kotadb/kotadb/internal/storage"
)

// Expertise tools maintain per-domain pattern knowledge: sync_expertise
// upserts a domain's patterns, validate_expertise flags patterns whose file
// references have gone stale against the current index.

func (c *catalog) handleSyncExpertise(ctx context.Context, args json.RawMessage) (any, error) {
	in, err := decode[struct {
		Domain   string `json:"domain"`
		Patterns []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
			FilePath    string `json:"file_path"`
			Example     string `json:"example"`
		} `json:"patterns"`
	}](args)
	if err != nil {
		return nil, err
	}

	repoID, _ := c.resolveRepo(ctx, "", false)

	ids := make([]string, 0, len(in.Patterns))

	for _, p := range in.Patterns {
		id, upErr := c.deps.Store.UpsertPattern(ctx, storage.Pattern{
			RepositoryID: repoID,
			PatternType:  in.Domain + ":" + p.Name,
			FilePath:     p.FilePath,
			Description:  p.Description,
			Example:      p.Example,
		})
		if upErr != nil {
			return nil, upErr
		}

		ids = append(ids, id)
	}

	return map[string]any{
		"domain": in.Domain,
		"synced": len(ids),
		"ids":    ids,
	}, nil
}

// staleness is one validate_expertise finding.
type staleness struct {
	PatternType string `json:"pattern_type"`
	FilePath    string `json:"file_path"`
	Reason      string `json:"reason"`
}

func (c *catalog) handleValidateExpertise(ctx context.Context, args json.RawMessage) (any, error) {
	in, err := decode[struct {
		Domain string `json:"domain"`
	}](args)
	if err != nil {
		return nil, err
	}

	repoID, err := c.resolveRepo(ctx, "", true)
	if err != nil {
		return nil, err
	}

	patterns, err := c.deps.Store.SearchPatterns(ctx, in.Domain+":", "", repoID, 0)
	if err != nil {
		return nil, err
	}

	if len(patterns) == 0 {
		return map[string]any{
			"domain":  in.Domain,
			"valid":   true,
			"checked": 0,
			"message": "no patterns recorded for this domain",
		}, nil
	}

	stale := []staleness{}

	for _, p := range patterns {
		if p.FilePath == "" {
			continue
		}

		id, resErr := c.deps.Query.ResolveFilePath(ctx, repoID, p.FilePath)
		if resErr != nil {
			return nil, resErr
		}

		if id == "" {
			stale = append(stale, staleness{
				PatternType: p.PatternType,
				FilePath:    p.FilePath,
				Reason:      "referenced file is no longer in the index",
			})
		}
	}

	return map[string]any{
		"domain":  in.Domain,
		"valid":   len(stale) == 0,
		"checked": len(patterns),
		"stale":   stale,
	}, nil
}
