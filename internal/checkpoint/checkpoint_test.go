package checkpoint_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kotadb/kotadb/internal/checkpoint"
)

func TestStore_SaveLoadDelete(t *testing.T) {
	t.Parallel()

	store := checkpoint.NewStore(filepath.Join(t.TempDir(), "checkpoints"))

	missing, err := store.Load(42)
	require.NoError(t, err)
	assert.Nil(t, missing, "absent checkpoint loads as nil, not an error")

	cp := &checkpoint.Checkpoint{
		IssueNumber: 42,
		WorkflowID:  "wf-42",
		Domain:      "auth",
		SpecPath:    "specs/issue-42.md",
	}

	require.NoError(t, store.Save(cp))
	assert.NotEmpty(t, cp.CreatedAt)
	assert.NotEmpty(t, cp.UpdatedAt)

	loaded, err := store.Load(42)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "wf-42", loaded.WorkflowID)
	assert.Equal(t, "specs/issue-42.md", loaded.SpecPath)

	require.NoError(t, store.Delete(42))

	gone, err := store.Load(42)
	require.NoError(t, err)
	assert.Nil(t, gone)

	assert.NoError(t, store.Delete(42), "deleting a missing checkpoint is a no-op")
}

func TestSave_PreservesCreatedAt(t *testing.T) {
	t.Parallel()

	store := checkpoint.NewStore(t.TempDir())

	cp := &checkpoint.Checkpoint{IssueNumber: 1, WorkflowID: "wf-1"}
	require.NoError(t, store.Save(cp))

	created := cp.CreatedAt

	cp.Domain = "auth"
	require.NoError(t, store.Save(cp))

	assert.Equal(t, created, cp.CreatedAt)
}

func TestCheckpoint_MarkCompleted(t *testing.T) {
	t.Parallel()

	cp := &checkpoint.Checkpoint{IssueNumber: 1}

	assert.False(t, cp.Completed("analysis"))

	cp.MarkCompleted("analysis")
	cp.MarkCompleted("analysis")

	assert.True(t, cp.Completed("analysis"))
	assert.Equal(t, []string{"analysis"}, cp.CompletedPhases, "marking twice records once")
}

func TestManifest_UpsertReplacesByIssue(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	m := checkpoint.NewManifest(dir)

	empty, err := m.Records()
	require.NoError(t, err)
	assert.Nil(t, empty)

	require.NoError(t, m.Upsert(checkpoint.RunRecord{IssueNumber: 1, Status: checkpoint.StatusRunning}))
	require.NoError(t, m.Upsert(checkpoint.RunRecord{IssueNumber: 2, Status: checkpoint.StatusRunning}))
	require.NoError(t, m.Upsert(checkpoint.RunRecord{
		IssueNumber: 1,
		Status:      checkpoint.StatusCompleted,
		PRURL:       "https://github.com/acme/web/pull/5",
	}))

	records, err := m.Records()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, checkpoint.StatusCompleted, records[0].Status)
	assert.Equal(t, "https://github.com/acme/web/pull/5", records[0].PRURL)
	assert.Equal(t, checkpoint.StatusRunning, records[1].Status)

	// The manifest is one JSON file rewritten in place.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "manifest.json", entries[0].Name())
}
