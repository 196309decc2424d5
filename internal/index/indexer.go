// Package index orchestrates full and incremental extraction of a working
// tree into the store, including import resolution against the repository's
// file set.
package index

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/kotadb/kotadb/internal/extract"
	"github.com/kotadb/kotadb/internal/storage"
)

// Stats summarizes one indexing run.
type Stats struct {
	FilesIndexed        int `json:"files_indexed"`
	SymbolsExtracted    int `json:"symbols_extracted"`
	ReferencesExtracted int `json:"references_extracted"`
	FilesDeleted        int `json:"files_deleted,omitempty"`
	FilesSkipped        int `json:"files_skipped,omitempty"`
}

// Indexer drives the extraction pipeline into the store.
type Indexer struct {
	store   *storage.Store
	logger  *slog.Logger
	extOpts extract.Options
}

// New creates an Indexer.
func New(store *storage.Store, logger *slog.Logger, extOpts extract.Options) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}

	extOpts.Logger = logger

	return &Indexer{store: store, logger: logger, extOpts: extOpts}
}

// RepoName derives the "local/<name>" full name for a working-tree root.
func RepoName(root string) string {
	return "local/" + filepath.Base(root)
}

// IndexFull runs a complete index of the working tree at root: repository
// upsert, extraction, per-file replacement and a final resolution pass.
func (ix *Indexer) IndexFull(ctx context.Context, root, fullName string) (string, Stats, error) {
	var stats Stats

	info := ReadGitInfo(root)

	if fullName == "" {
		fullName = FullNameFromRemote(info.RemoteURL)
	}

	if fullName == "" {
		fullName = RepoName(root)
	}

	gitURL := info.RemoteURL
	if gitURL == "" {
		gitURL = root
	}

	repoID, err := ix.store.UpsertRepository(ctx, fullName, gitURL)
	if err != nil {
		return "", stats, err
	}

	scans, err := extract.New(root, ix.extOpts).Scan(ctx)
	if err != nil {
		return "", stats, fmt.Errorf("scan %s: %w", root, err)
	}

	for _, scan := range scans {
		err = ix.applyScan(ctx, repoID, scan, &stats)
		if err != nil {
			return "", stats, err
		}
	}

	err = ix.resolveAll(ctx, repoID)
	if err != nil {
		return "", stats, err
	}

	err = ix.store.TouchRepositoryIndexed(ctx, repoID)
	if err != nil {
		return "", stats, err
	}

	ix.logger.Info("indexed repository",
		"repository", fullName,
		"files", stats.FilesIndexed,
		"symbols", stats.SymbolsExtracted,
		"references", stats.ReferencesExtracted)

	return repoID, stats, nil
}

// IndexIncremental applies a set of changed and deleted paths. Files whose
// content hash is unchanged are skipped. References are re-resolved for
// changed files and for edges that pointed at any changed or deleted path.
func (ix *Indexer) IndexIncremental(ctx context.Context, repoID, root string, changed, deleted []string) (Stats, error) {
	var stats Stats

	for _, p := range deleted {
		err := ix.store.DeleteFileByPath(ctx, repoID, p)
		if err != nil {
			return stats, err
		}

		stats.FilesDeleted++
	}

	hashes, err := ix.store.FileHashes(ctx, repoID)
	if err != nil {
		return stats, err
	}

	scans, err := extract.New(root, ix.extOpts).ScanPaths(ctx, changed)
	if err != nil {
		return stats, fmt.Errorf("scan changed paths: %w", err)
	}

	touched := make([]string, 0, len(scans)+len(deleted))
	touched = append(touched, deleted...)

	for _, scan := range scans {
		if hashes[scan.Path] == scan.ContentHash {
			stats.FilesSkipped++

			continue
		}

		err = ix.applyScan(ctx, repoID, scan, &stats)
		if err != nil {
			return stats, err
		}

		touched = append(touched, scan.Path)
	}

	if len(touched) > 0 {
		err = ix.resolveTouched(ctx, repoID, touched)
		if err != nil {
			return stats, err
		}

		err = ix.store.TouchRepositoryIndexed(ctx, repoID)
		if err != nil {
			return stats, err
		}
	}

	return stats, nil
}

// applyScan converts one extraction result into the per-file transactional
// replacement.
func (ix *Indexer) applyScan(ctx context.Context, repoID string, scan extract.FileScan, stats *Stats) error {
	syms := make([]storage.Symbol, 0, len(scan.Symbols))

	for _, sym := range scan.Symbols {
		meta, _ := json.Marshal(map[string]any{"is_exported": sym.Exported})

		syms = append(syms, storage.Symbol{
			Name:      sym.Name,
			Kind:      sym.Kind,
			Signature: sym.Signature,
			LineStart: sym.LineStart,
			LineEnd:   sym.LineEnd,
			Metadata:  string(meta),
		})
	}

	refs := make([]storage.Reference, 0, len(scan.References))

	for _, ref := range scan.References {
		meta, _ := json.Marshal(map[string]any{"importSource": ref.Specifier})

		refs = append(refs, storage.Reference{
			TargetSymbolName: ref.SymbolName,
			ReferenceType:    ref.Type,
			Metadata:         string(meta),
		})
	}

	_, err := ix.store.ReplaceFile(ctx, storage.File{
		RepositoryID: repoID,
		Path:         scan.Path,
		Language:     scan.Language,
		ContentHash:  scan.ContentHash,
		Size:         scan.Size,
		Content:      scan.Content,
	}, syms, refs)
	if err != nil {
		return err
	}

	stats.FilesIndexed++
	stats.SymbolsExtracted += len(syms)
	stats.ReferencesExtracted += len(refs)

	return nil
}

// resolveAll resolves every reference in the repository.
func (ix *Indexer) resolveAll(ctx context.Context, repoID string) error {
	return ix.resolve(ctx, repoID, nil)
}

// resolveTouched resolves references belonging to the touched files plus
// all references whose current target is one of the touched paths.
func (ix *Indexer) resolveTouched(ctx context.Context, repoID string, touchedPaths []string) error {
	set := make(map[string]bool, len(touchedPaths))
	for _, p := range touchedPaths {
		set[p] = true
	}

	return ix.resolve(ctx, repoID, set)
}

// resolve recomputes target_file_path. When touched is nil every file is
// re-resolved; otherwise only references from touched files, references
// targeting touched paths, and currently-unresolved references are revisited.
func (ix *Indexer) resolve(ctx context.Context, repoID string, touched map[string]bool) error {
	summaries, err := ix.store.ListFileSummaries(ctx, repoID)
	if err != nil {
		return err
	}

	known := make(map[string]bool, len(summaries))
	for _, fsum := range summaries {
		known[fsum.Path] = true
	}

	updates := make(map[string]string)

	for _, fsum := range summaries {
		refs, refErr := ix.store.ReferencesByFile(ctx, fsum.ID)
		if refErr != nil {
			return refErr
		}

		for _, ref := range refs {
			if touched != nil && !touched[fsum.Path] &&
				ref.TargetFilePath != "" && !touched[ref.TargetFilePath] {
				continue
			}

			resolved := ResolveSpecifier(fsum.Language, fsum.Path, importSource(ref), known)
			if resolved != ref.TargetFilePath {
				updates[ref.ID] = resolved
			}
		}
	}

	return ix.store.UpdateReferenceTargets(ctx, updates)
}

// importSource reads the raw specifier out of reference metadata.
func importSource(ref storage.Reference) string {
	var meta struct {
		ImportSource string `json:"importSource"`
	}

	err := json.Unmarshal([]byte(ref.Metadata), &meta)
	if err != nil {
		return ""
	}

	return meta.ImportSource
}
