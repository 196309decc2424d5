package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/kotadb/kotadb/internal/index"
	"github.com/kotadb/kotadb/internal/query"
	"github.com/kotadb/kotadb/internal/storage"
	"github.com/kotadb/kotadb/internal/syncx"
)

// Deps wires the catalog handlers to the rest of the system.
type Deps struct {
	Store   *storage.Store
	Query   *query.Service
	Indexer *index.Indexer
	Syncer  *syncx.Syncer
	Guard   *Guard
	Logger  *slog.Logger

	// Root is the working directory all relative tool paths resolve
	// against.
	Root string
}

// NewCatalog builds the full registry with every tool registered.
func NewCatalog(deps Deps) (*Registry, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	c := &catalog{deps: deps}
	r := NewRegistry(deps.Logger)

	entries := []struct {
		tool    *Tool
		handler Handler
	}{
		{&Tool{
			Name:        "search",
			Description: "Unified search across code, symbols, decisions, patterns and failures.",
			Tier:        TierCore,
			Schema:      searchSchema,
		}, c.handleSearch},
		{&Tool{
			Name:        "index_repository",
			Description: "Index a repository working tree: extract files, symbols and import references.",
			Tier:        TierCore,
			Schema:      indexRepositorySchema,
		}, c.handleIndexRepository},
		{&Tool{
			Name:        "list_recent_files",
			Description: "List the most recently indexed files with repository statistics.",
			Tier:        TierCore,
			Schema:      listRecentFilesSchema,
		}, c.handleListRecentFiles},
		{&Tool{
			Name:        "search_dependencies",
			Description: "Traverse the file dependency graph from a file, reporting direct and indirect edges and cycles.",
			Tier:        TierCore,
			Schema:      searchDependenciesSchema,
		}, c.handleSearchDependencies},
		{&Tool{
			Name:        "analyze_change_impact",
			Description: "Diff a file against its indexed content and report affected symbols and dependents.",
			Tier:        TierCore,
			Schema:      analyzeChangeImpactSchema,
		}, c.handleAnalyzeChangeImpact},
		{&Tool{
			Name:        "validate_implementation_spec",
			Description: "Check a specification document for required sections and stale file references.",
			Tier:        TierCore,
			Schema:      validateImplementationSpecSchema,
		}, c.handleValidateImplementationSpec},
		{&Tool{
			Name:        "generate_task_context",
			Description: "Aggregate key files, decisions, patterns and failures relevant to a task.",
			Tier:        TierCore,
			Schema:      generateTaskContextSchema,
		}, c.handleGenerateTaskContext},
		{&Tool{
			Name:        "kota_sync_export",
			Description: "Export changed tables as JSONL plus a deletion manifest.",
			Tier:        TierSync,
			Schema:      syncExportSchema,
		}, c.handleSyncExport},
		{&Tool{
			Name:        "kota_sync_import",
			Description: "Import JSONL tables, applying recorded deletions first.",
			Tier:        TierSync,
			Schema:      syncImportSchema,
		}, c.handleSyncImport},
		{&Tool{
			Name:        "record_decision",
			Description: "Record an architectural or convention decision.",
			Tier:        TierMemory,
			Schema:      recordDecisionSchema,
		}, c.handleRecordDecision},
		{&Tool{
			Name:        "record_failure",
			Description: "Record a failed approach so it is not repeated.",
			Tier:        TierMemory,
			Schema:      recordFailureSchema,
		}, c.handleRecordFailure},
		{&Tool{
			Name:        "record_insight",
			Description: "Record a lightweight session insight.",
			Tier:        TierMemory,
			Schema:      recordInsightSchema,
		}, c.handleRecordInsight},
		{&Tool{
			Name:        "get_recent_patterns",
			Description: "List recently recorded code patterns, optionally filtered by type or file.",
			Tier:        TierMemory,
			Schema:      getRecentPatternsSchema,
		}, c.handleGetRecentPatterns},
		{&Tool{
			Name:        "get_domain_key_files",
			Description: "Rank a domain's files by inbound dependents.",
			Tier:        TierExpertise,
			Schema:      getDomainKeyFilesSchema,
		}, c.handleGetDomainKeyFiles},
		{&Tool{
			Name:        "validate_expertise",
			Description: "Check a domain's recorded patterns against the current index for stale file references.",
			Tier:        TierExpertise,
			Schema:      validateExpertiseSchema,
		}, c.handleValidateExpertise},
		{&Tool{
			Name:        "sync_expertise",
			Description: "Upsert a domain's expertise patterns into the pattern store.",
			Tier:        TierExpertise,
			Schema:      syncExpertiseSchema,
		}, c.handleSyncExpertise},
	}

	for _, e := range entries {
		err := r.Register(e.tool, e.handler)
		if err != nil {
			return nil, err
		}
	}

	return r, nil
}

// catalog binds handlers to their dependencies.
type catalog struct {
	deps Deps
}

func (c *catalog) handleIndexRepository(ctx context.Context, args json.RawMessage) (any, error) {
	in, err := decode[struct {
		Repository string `json:"repository"`
		Ref        string `json:"ref"`
		LocalPath  string `json:"localPath"`
	}](args)
	if err != nil {
		return nil, err
	}

	root := in.LocalPath
	if root == "" {
		root = c.deps.Root
	}

	if !filepath.IsAbs(root) {
		root = filepath.Join(c.deps.Root, root)
	}

	if in.Ref != "" && !index.RefExists(root, in.Ref) {
		return nil, fmt.Errorf("%w: ref %q not found in %s", ErrInvalidParams, in.Ref, root)
	}

	repoID, stats, err := c.deps.Indexer.IndexFull(ctx, root, in.Repository)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"repositoryId": repoID,
		"status":       "completed",
		"stats":        stats,
	}, nil
}

func (c *catalog) handleListRecentFiles(ctx context.Context, args json.RawMessage) (any, error) {
	in, err := decode[struct {
		Limit      int    `json:"limit"`
		Repository string `json:"repository"`
	}](args)
	if err != nil {
		return nil, err
	}

	if in.Limit == 0 {
		in.Limit = 10
	}

	repoID, err := c.resolveRepo(ctx, in.Repository, false)
	if err != nil {
		return nil, err
	}

	if repoID == "" {
		return map[string]any{"files": []any{}, "message": "no indexed repository"}, nil
	}

	files, err := c.deps.Store.RecentFiles(ctx, repoID, in.Limit)
	if err != nil {
		return nil, err
	}

	stats, err := c.deps.Query.Stats(ctx, repoID)
	if err != nil {
		return nil, err
	}

	return map[string]any{"files": files, "stats": stats}, nil
}

func (c *catalog) handleSearchDependencies(ctx context.Context, args json.RawMessage) (any, error) {
	in, err := decode[struct {
		FilePath       string   `json:"file_path"`
		Direction      string   `json:"direction"`
		Depth          int      `json:"depth"`
		IncludeTests   *bool    `json:"include_tests"`
		ReferenceTypes []string `json:"reference_types"`
		Repository     string   `json:"repository"`
	}](args)
	if err != nil {
		return nil, err
	}

	if in.Direction == "" {
		in.Direction = query.DirectionDependencies
	}

	if in.Depth == 0 {
		in.Depth = 1
	}

	includeTests := true
	if in.IncludeTests != nil {
		includeTests = *in.IncludeTests
	}

	repoID, err := c.resolveRepo(ctx, in.Repository, true)
	if err != nil {
		return nil, err
	}

	directions := []string{in.Direction}
	if in.Direction == "both" {
		directions = []string{query.DirectionDependents, query.DirectionDependencies}
	}

	out := map[string]any{"file_path": query.NormalizePath(in.FilePath)}

	for _, dir := range directions {
		res, depErr := c.deps.Query.Dependencies(ctx, repoID, in.FilePath, dir, in.Depth, includeTests, in.ReferenceTypes)
		if depErr != nil {
			return nil, depErr
		}

		out[dir] = res
	}

	return out, nil
}

func (c *catalog) handleAnalyzeChangeImpact(ctx context.Context, args json.RawMessage) (any, error) {
	in, err := decode[struct {
		FilePath   string `json:"file_path"`
		Repository string `json:"repository"`
	}](args)
	if err != nil {
		return nil, err
	}

	repoID, err := c.resolveRepo(ctx, in.Repository, true)
	if err != nil {
		return nil, err
	}

	return c.deps.Query.ChangeImpact(ctx, repoID, c.deps.Root, in.FilePath)
}

func (c *catalog) handleRecordDecision(ctx context.Context, args json.RawMessage) (any, error) {
	in, err := decode[struct {
		Title        string   `json:"title"`
		Context      string   `json:"context"`
		Decision     string   `json:"decision"`
		Scope        string   `json:"scope"`
		Rationale    string   `json:"rationale"`
		Alternatives []string `json:"alternatives"`
		RelatedFiles []string `json:"related_files"`
	}](args)
	if err != nil {
		return nil, err
	}

	repoID, _ := c.resolveRepo(ctx, "", false)

	id, err := c.deps.Store.RecordDecision(ctx, storage.Decision{
		RepositoryID: repoID,
		Title:        in.Title,
		Context:      in.Context,
		Decision:     in.Decision,
		Scope:        in.Scope,
		Rationale:    in.Rationale,
		Alternatives: in.Alternatives,
		RelatedFiles: in.RelatedFiles,
	})
	if err != nil {
		return nil, err
	}

	return map[string]any{"id": id, "recorded": true}, nil
}

func (c *catalog) handleRecordFailure(ctx context.Context, args json.RawMessage) (any, error) {
	in, err := decode[struct {
		Title         string   `json:"title"`
		Problem       string   `json:"problem"`
		Approach      string   `json:"approach"`
		FailureReason string   `json:"failure_reason"`
		RelatedFiles  []string `json:"related_files"`
	}](args)
	if err != nil {
		return nil, err
	}

	repoID, _ := c.resolveRepo(ctx, "", false)

	id, err := c.deps.Store.RecordFailure(ctx, storage.Failure{
		RepositoryID:  repoID,
		Title:         in.Title,
		Problem:       in.Problem,
		Approach:      in.Approach,
		FailureReason: in.FailureReason,
		RelatedFiles:  in.RelatedFiles,
	})
	if err != nil {
		return nil, err
	}

	return map[string]any{"id": id, "recorded": true}, nil
}

func (c *catalog) handleRecordInsight(ctx context.Context, args json.RawMessage) (any, error) {
	in, err := decode[struct {
		Content     string `json:"content"`
		InsightType string `json:"insight_type"`
		SessionID   string `json:"session_id"`
		RelatedFile string `json:"related_file"`
	}](args)
	if err != nil {
		return nil, err
	}

	id, err := c.deps.Store.RecordInsight(ctx, storage.Insight{
		SessionID:   in.SessionID,
		Content:     in.Content,
		InsightType: in.InsightType,
		RelatedFile: in.RelatedFile,
	})
	if err != nil {
		return nil, err
	}

	return map[string]any{"id": id, "recorded": true}, nil
}

func (c *catalog) handleGetRecentPatterns(ctx context.Context, args json.RawMessage) (any, error) {
	in, err := decode[struct {
		PatternType string `json:"pattern_type"`
		FilePath    string `json:"file_path"`
		Limit       int    `json:"limit"`
	}](args)
	if err != nil {
		return nil, err
	}

	if in.Limit == 0 {
		in.Limit = 10
	}

	repoID, _ := c.resolveRepo(ctx, "", false)

	patterns, err := c.deps.Store.SearchPatterns(ctx, in.PatternType, in.FilePath, repoID, in.Limit)
	if err != nil {
		return nil, err
	}

	if len(patterns) == 0 {
		return map[string]any{"patterns": []any{}, "message": "no patterns recorded"}, nil
	}

	return map[string]any{"patterns": patterns}, nil
}

func (c *catalog) handleGetDomainKeyFiles(ctx context.Context, args json.RawMessage) (any, error) {
	in, err := decode[struct {
		Domain string `json:"domain"`
		Limit  int    `json:"limit"`
	}](args)
	if err != nil {
		return nil, err
	}

	if in.Limit == 0 {
		in.Limit = 10
	}

	repoID, err := c.resolveRepo(ctx, "", true)
	if err != nil {
		return nil, err
	}

	files, err := c.deps.Query.DomainKeyFiles(ctx, repoID, in.Domain, in.Limit)
	if err != nil {
		return nil, err
	}

	if len(files) == 0 {
		return map[string]any{
			"domain":  in.Domain,
			"files":   []any{},
			"message": "no files matched this domain",
		}, nil
	}

	return map[string]any{"domain": in.Domain, "files": files}, nil
}

func (c *catalog) handleSyncExport(ctx context.Context, args json.RawMessage) (any, error) {
	in, err := decode[struct {
		Force     bool   `json:"force"`
		ExportDir string `json:"export_dir"`
	}](args)
	if err != nil {
		return nil, err
	}

	dir := in.ExportDir
	if dir == "" {
		dir = filepath.Join(c.deps.Root, syncx.DefaultExportDir)
	}

	return c.deps.Syncer.Export(ctx, dir, in.Force)
}

func (c *catalog) handleSyncImport(ctx context.Context, args json.RawMessage) (any, error) {
	in, err := decode[struct {
		ImportDir string `json:"import_dir"`
	}](args)
	if err != nil {
		return nil, err
	}

	dir := in.ImportDir
	if dir == "" {
		dir = filepath.Join(c.deps.Root, syncx.DefaultExportDir)
	}

	return c.deps.Syncer.Import(ctx, dir)
}

// resolveRepo maps an optional repository full name onto an ID, falling back
// to the auto-index guard for the working directory.
func (c *catalog) resolveRepo(ctx context.Context, fullName string, required bool) (string, error) {
	if fullName != "" {
		repo, err := c.deps.Store.GetRepositoryByName(ctx, fullName)
		if err != nil {
			return "", err
		}

		return repo.ID, nil
	}

	return c.deps.Guard.EnsureIndexed(ctx, required)
}
