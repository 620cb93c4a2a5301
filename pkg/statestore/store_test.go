package statestore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	Step   string         `json:"step"`
	Status string         `json:"status"`
	Vars   map[string]int `json:"vars,omitempty"`
}

func TestNewStoreCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "state")

	store, err := NewStore(dir)
	require.NoError(t, err)
	require.NotNil(t, store)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestSaveAndLoad(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	in := fixture{Step: "implement", Status: "in_progress", Vars: map[string]int{"attempt": 2}}
	require.NoError(t, store.Save("story-001", in))

	var out fixture
	found, err := store.Load("story-001", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, in, out)
}

func TestLoadMissingKeyReturnsNotFound(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	var out fixture
	found, err := store.Load("unknown", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSaveOverwritesAtomically(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Save("story-001", fixture{Step: "implement"}))
	require.NoError(t, store.Save("story-001", fixture{Step: "self-review"}))

	var out fixture
	found, err := store.Load("story-001", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "self-review", out.Step)

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "story-001.json", entries[0].Name())
}

func TestSaveCorruptionResistance(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Save("story-001", fixture{Step: "implement"}))

	// A non-serializable value fails before touching the existing file.
	err = store.Save("story-001", map[string]any{"bad": make(chan int)})
	require.Error(t, err)

	var out fixture
	found, err := store.Load("story-001", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "implement", out.Step)
}

func TestEmptyKeyRejected(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	assert.Error(t, store.Save("", fixture{}))

	var out fixture
	_, err = store.Load("", &out)
	assert.Error(t, err)

	assert.Error(t, store.Delete(""))
	assert.Error(t, store.Archive(""))
}

func TestDelete(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	// Deleting a missing key is a no-op.
	require.NoError(t, store.Delete("missing"))

	require.NoError(t, store.Save("story-001", fixture{Step: "implement"}))
	require.NoError(t, store.Delete("story-001"))

	var out fixture
	found, err := store.Load("story-001", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestArchive(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	// Archiving a missing key is a no-op.
	require.NoError(t, store.Archive("missing"))

	require.NoError(t, store.Save("story-001", fixture{Step: "cleanup", Status: "completed"}))
	require.NoError(t, store.Archive("story-001"))

	// Live checkpoint gone, archived copy retained.
	var out fixture
	found, err := store.Load("story-001", &out)
	require.NoError(t, err)
	assert.False(t, found)

	_, err = os.Stat(filepath.Join(dir, "story-001.json.done"))
	assert.NoError(t, err)
}

func TestList(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	keys, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, keys)

	require.NoError(t, store.Save("story-001", fixture{}))
	require.NoError(t, store.Save("story-002", fixture{}))
	require.NoError(t, store.Save("story-003", fixture{}))
	require.NoError(t, store.Archive("story-003"))

	keys, err = store.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"story-001", "story-002"}, keys)
}

func TestSanitizedKeys(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Save("team/story:42", fixture{Step: "implement"}))

	var out fixture
	found, err := store.Load("team/story:42", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "implement", out.Step)
}
