// Package query implements the read-side operations over the store: search,
// dependency traversal, file-path resolution, statistics and domain key-file
// aggregation.
package query

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kotadb/kotadb/internal/storage"
)

// Sentinel errors surfaced to the tool layer as InvalidParams.
var (
	ErrInvalidDepth     = errors.New("depth must be between 1 and 5")
	ErrInvalidDirection = errors.New("direction must be dependents, dependencies or both")
	ErrFileNotFound     = errors.New("file not found in index")
)

// Service is the query layer over a Store. DomainRules maps a domain name
// onto path prefixes; it is configuration data, not code.
type Service struct {
	store       *storage.Store
	domainRules map[string][]string
}

// NewService creates a query service.
func NewService(store *storage.Store, domainRules map[string][]string) *Service {
	return &Service{store: store, domainRules: domainRules}
}

// Store exposes the underlying store for callers that need raw row access.
func (s *Service) Store() *storage.Store { return s.store }

// ResolveFilePath maps a repository-relative path to its file ID, or ""
// when not indexed. Leading "./" and platform separators normalize away.
func (s *Service) ResolveFilePath(ctx context.Context, repoID, path string) (string, error) {
	normalized := NormalizePath(path)

	f, err := s.store.GetFileByPath(ctx, repoID, normalized)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}

	if err != nil {
		return "", err
	}

	return f.ID, nil
}

// NormalizePath POSIX-normalizes a repository-relative path.
func NormalizePath(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	path = strings.TrimPrefix(path, "./")

	return strings.TrimPrefix(path, "/")
}

// DependencyResult is the payload of a dependency traversal for one
// direction.
type DependencyResult struct {
	Traversal
	UnresolvedImports []string `json:"unresolved_imports,omitempty"`
}

// Dependencies traverses the dependency graph from filePath. Direction is
// DirectionDependents or DirectionDependencies; depth must lie in
// [MinDepth, MaxDepth].
func (s *Service) Dependencies(ctx context.Context, repoID, filePath, direction string, depth int, includeTests bool, refTypes []string) (*DependencyResult, error) {
	if depth < MinDepth || depth > MaxDepth {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidDepth, depth)
	}

	if direction != DirectionDependents && direction != DirectionDependencies {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidDirection, direction)
	}

	normalized := NormalizePath(filePath)

	f, err := s.store.GetFileByPath(ctx, repoID, normalized)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, normalized)
	}

	if err != nil {
		return nil, err
	}

	edges, err := s.store.DependencyEdges(ctx, repoID, refTypes)
	if err != nil {
		return nil, err
	}

	unresolved, err := s.store.UnresolvedImports(ctx, f.ID)
	if err != nil {
		return nil, err
	}

	return &DependencyResult{
		Traversal:         Traverse(edges, normalized, direction, depth, includeTests),
		UnresolvedImports: unresolved,
	}, nil
}

// KeyFile is one domain key file ranked by inbound dependents.
type KeyFile struct {
	Path       string `json:"path"`
	Dependents int    `json:"dependents"`
}

// DomainKeyFiles returns the files with the highest inbound-dependent count
// whose path matches the domain's configured prefixes. An unknown domain
// matches nothing and returns an empty list.
func (s *Service) DomainKeyFiles(ctx context.Context, repoID, domain string, limit int) ([]KeyFile, error) {
	prefixes := s.domainRules[domain]

	counts, err := s.store.InboundCounts(ctx, repoID)
	if err != nil {
		return nil, err
	}

	summaries, err := s.store.ListFileSummaries(ctx, repoID)
	if err != nil {
		return nil, err
	}

	var out []KeyFile

	for _, f := range summaries {
		if !matchesDomain(f.Path, prefixes) {
			continue
		}

		out = append(out, KeyFile{Path: f.Path, Dependents: counts[f.Path]})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Dependents != out[j].Dependents {
			return out[i].Dependents > out[j].Dependents
		}

		return out[i].Path < out[j].Path
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

func matchesDomain(path string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return false
	}

	for _, p := range prefixes {
		if strings.HasPrefix(path, p) || strings.Contains(path, p) {
			return true
		}
	}

	return false
}

// RepoStats summarizes an indexed repository.
type RepoStats struct {
	Files         int    `json:"files"`
	Symbols       int    `json:"symbols"`
	References    int    `json:"references"`
	LastIndexedAt string `json:"last_indexed_at,omitempty"`
}

// Stats aggregates row counts for a repository.
func (s *Service) Stats(ctx context.Context, repoID string) (*RepoStats, error) {
	repo, err := s.store.GetRepository(ctx, repoID)
	if err != nil {
		return nil, err
	}

	files, err := s.store.CountFiles(ctx, repoID)
	if err != nil {
		return nil, err
	}

	symbols, err := s.store.CountSymbols(ctx, repoID)
	if err != nil {
		return nil, err
	}

	refs, err := s.store.CountReferences(ctx, repoID)
	if err != nil {
		return nil, err
	}

	return &RepoStats{
		Files:         files,
		Symbols:       symbols,
		References:    refs,
		LastIndexedAt: repo.LastIndexedAt,
	}, nil
}
