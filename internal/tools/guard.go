package tools

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/kotadb/kotadb/internal/index"
	"github.com/kotadb/kotadb/internal/storage"
)

// Guard lazily indexes the working directory before tools that need indexed
// state. A repository counts as indexed when it exists, has been indexed at
// least once and still holds files.
type Guard struct {
	store   *storage.Store
	indexer *index.Indexer
	logger  *slog.Logger
	root    string

	mu sync.Mutex
}

// NewGuard creates an auto-index guard rooted at the working directory.
func NewGuard(store *storage.Store, indexer *index.Indexer, logger *slog.Logger, root string) *Guard {
	if logger == nil {
		logger = slog.Default()
	}

	return &Guard{store: store, indexer: indexer, logger: logger, root: root}
}

// EnsureIndexed returns the repository ID for the working directory,
// indexing it first when absent, never indexed, or emptied. When required is
// false an indexing failure degrades to an empty repository ID so read-only
// tools can proceed on empty data.
func (g *Guard) EnsureIndexed(ctx context.Context, required bool) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	repo, err := g.store.GetRepositoryByPath(ctx, g.root)

	switch {
	case err == nil:
		if repo.LastIndexedAt != "" {
			n, countErr := g.store.CountFiles(ctx, repo.ID)
			if countErr != nil {
				return "", countErr
			}

			if n > 0 {
				return repo.ID, nil
			}
		}
	case !errors.Is(err, storage.ErrNotFound):
		return "", err
	}

	g.logger.Info("auto-indexing working directory", "root", g.root)

	repoID, _, idxErr := g.indexer.IndexFull(ctx, g.root, "")
	if idxErr != nil {
		if required {
			return "", idxErr
		}

		g.logger.Warn("auto-index failed, proceeding on empty data", "error", idxErr)

		return "", nil
	}

	return repoID, nil
}
