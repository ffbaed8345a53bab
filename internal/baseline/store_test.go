package baseline

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ernop/gpt-webdiff/internal/snapshot"
)

func capturedAt(min int) time.Time {
	return time.Date(2024, 3, 1, 12, min, 0, 0, time.Local)
}

func TestStore_LoadMissingFile(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "job_metadata.json"))

	state, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, state)
}

func TestStore_RecordAndGet(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "job_metadata.json"))
	ref := snapshot.Ref{JobName: "site-x", CapturedAt: capturedAt(5)}

	require.NoError(t, store.Record(ref))

	e, ok, err := store.Get("site-x")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ref.Filename(), e.LastEmailed)

	got, ok := e.Ref("site-x")
	require.True(t, ok)
	assert.True(t, got.CapturedAt.Equal(ref.CapturedAt))
}

func TestStore_RecordKeepsOtherJobs(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "job_metadata.json"))
	require.NoError(t, store.Record(snapshot.Ref{JobName: "a", CapturedAt: capturedAt(1)}))
	require.NoError(t, store.Record(snapshot.Ref{JobName: "b", CapturedAt: capturedAt(2)}))
	require.NoError(t, store.Record(snapshot.Ref{JobName: "a", CapturedAt: capturedAt(3)}))

	state, err := store.Load()
	require.NoError(t, err)
	require.Len(t, state, 2)
	assert.Equal(t, snapshot.Ref{JobName: "a", CapturedAt: capturedAt(3)}.Filename(), state["a"].LastEmailed)
	assert.Equal(t, snapshot.Ref{JobName: "b", CapturedAt: capturedAt(2)}.Filename(), state["b"].LastEmailed)
}

func TestStore_Forget(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "job_metadata.json"))
	require.NoError(t, store.Record(snapshot.Ref{JobName: "a", CapturedAt: capturedAt(1)}))

	require.NoError(t, store.Forget("a"))
	require.NoError(t, store.Forget("never-there"))

	_, ok, err := store.Get("a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job_metadata.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := NewStore(path).Load()
	assert.Error(t, err)
}

func TestStore_NullFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job_metadata.json")
	require.NoError(t, os.WriteFile(path, []byte("null\n"), 0644))
	store := NewStore(path)

	state, err := store.Load()
	require.NoError(t, err)
	assert.NotNil(t, state)
	assert.Empty(t, state)

	ref := snapshot.Ref{JobName: "site-x", CapturedAt: capturedAt(7)}
	require.NotPanics(t, func() {
		require.NoError(t, store.Record(ref))
	})
	e, ok, err := store.Get("site-x")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ref.Filename(), e.LastEmailed)

	require.NoError(t, os.WriteFile(path, []byte("null"), 0644))
	require.NoError(t, store.Forget("site-x"))
}

func TestRecorded(t *testing.T) {
	dir := t.TempDir()
	snaps := snapshot.NewStore(filepath.Join(dir, "data"))
	for _, m := range []int{0, 10, 20} {
		require.NoError(t, snaps.Save(snapshot.Ref{JobName: "site-x", CapturedAt: capturedAt(m)}, []byte("x")))
	}

	t.Run("nothing recorded", func(t *testing.T) {
		store := NewStore(filepath.Join(dir, "empty.json"))
		ref, err := store.Recorded("site-x", snaps)
		require.NoError(t, err)
		assert.Nil(t, ref)
	})

	t.Run("current format", func(t *testing.T) {
		store := NewStore(filepath.Join(dir, "current.json"))
		require.NoError(t, store.Record(snapshot.Ref{JobName: "site-x", CapturedAt: capturedAt(10)}))

		ref, err := store.Recorded("site-x", snaps)
		require.NoError(t, err)
		require.NotNil(t, ref)
		assert.True(t, ref.CapturedAt.Equal(capturedAt(10)))
	})

	t.Run("legacy unix time", func(t *testing.T) {
		path := filepath.Join(dir, "legacy.json")
		legacy := float64(capturedAt(5).Unix()) + 0.25
		content := []byte(`{"site-x": {"last_successful_time": ` + strconv.FormatFloat(legacy, 'f', -1, 64) + `}}`)
		require.NoError(t, os.WriteFile(path, content, 0644))

		ref, err := NewStore(path).Recorded("site-x", snaps)
		require.NoError(t, err)
		require.NotNil(t, ref)
		assert.True(t, ref.CapturedAt.Equal(capturedAt(10)))
	})
}
