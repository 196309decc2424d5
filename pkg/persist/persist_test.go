package persist_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kotadb/kotadb/pkg/persist"
)

type state struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	codec := persist.NewJSONCodec()

	in := state{Name: "run", Count: 3}
	require.NoError(t, persist.SaveState(dir, "run-state", codec, in))

	var out state
	require.NoError(t, persist.LoadState(dir, "run-state", codec, &out))
	assert.Equal(t, in, out)

	// The temp file from the atomic write never survives.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "run-state.json", entries[0].Name())
}

func TestSaveState_CreatesDirectory(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "state")
	require.NoError(t, persist.SaveState(dir, "s", persist.NewJSONCodec(), state{}))

	_, err := os.Stat(filepath.Join(dir, "s.json"))
	assert.NoError(t, err)
}

func TestSaveState_OverwritesAtomically(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	codec := persist.NewJSONCodec()

	require.NoError(t, persist.SaveState(dir, "s", codec, state{Count: 1}))
	require.NoError(t, persist.SaveState(dir, "s", codec, state{Count: 2}))

	var out state
	require.NoError(t, persist.LoadState(dir, "s", codec, &out))
	assert.Equal(t, 2, out.Count)
}

func TestLoadState_MissingFile(t *testing.T) {
	t.Parallel()

	var out state

	err := persist.LoadState(t.TempDir(), "absent", persist.NewJSONCodec(), &out)
	assert.Error(t, err)
}

func TestRemoveState(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	codec := persist.NewJSONCodec()

	require.NoError(t, persist.SaveState(dir, "s", codec, state{}))
	require.NoError(t, persist.RemoveState(dir, "s", codec))

	_, err := os.Stat(filepath.Join(dir, "s.json"))
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, persist.RemoveState(dir, "s", codec), "missing file is not an error")
}

func TestJSONCodec_CompactWithoutIndent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	codec := &persist.JSONCodec{}

	require.NoError(t, persist.SaveState(dir, "s", codec, state{Name: "x"}))

	data, err := os.ReadFile(filepath.Join(dir, "s.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "  \"name\"")
}
