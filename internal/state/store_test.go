package state_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/plumekit/plume/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupStore(t *testing.T) (*state.Store, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "state.json")

	return state.NewStore(path, zap.NewNop()), path
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	store, _ := setupStore(t)

	st := store.Load()
	require.NotNil(t, st)
	assert.Empty(t, st.Threads)
	assert.False(t, st.HasReplied("c1"))
}

func TestLoadMalformedFile(t *testing.T) {
	t.Parallel()

	store, path := setupStore(t)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	st := store.Load()
	require.NotNil(t, st)
	assert.Empty(t, st.Replied)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	store, _ := setupStore(t)
	now := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)

	st := state.New()
	st.RecordTextPost(now)
	st.RecordReply("c1", "t1", "u1", now)
	st.MarkImageUsed("images/a.jpg")
	require.NoError(t, store.Save(st))

	loaded := store.Load()
	assert.Equal(t, 1, loaded.Day.TextPosts)
	assert.Equal(t, 1, loaded.Day.Replies)
	assert.True(t, loaded.HasReplied("c1"))
	require.NotNil(t, loaded.Thread("t1"))
	assert.Equal(t, 1, loaded.Thread("t1").RepliesByUser["u1"])
	assert.True(t, loaded.ImageUsed("images/a.jpg"))
	assert.True(t, loaded.LastReplyAt.Equal(now))
}

func TestSaveReplacesAtomically(t *testing.T) {
	t.Parallel()

	store, path := setupStore(t)

	st := state.New()
	require.NoError(t, store.Save(st))

	st.RecordReply("c1", "t1", "u1", time.Now())
	require.NoError(t, store.Save(st))

	// No temp files left behind next to the document.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Base(path), entries[0].Name())
}
