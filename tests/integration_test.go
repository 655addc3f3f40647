// Package tests exercises the full pipeline: a live store emitting change
// records, the spool-watching archiver logging them, replay from the log, and
// snapshot persistence round trips.
package tests

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mergedoc/mergedoc/internal/archive"
	"github.com/mergedoc/mergedoc/internal/doc"
	"github.com/mergedoc/mergedoc/internal/snapshot"
	"github.com/mergedoc/mergedoc/internal/store"
)

// spoolSink returns a ChangeSink that writes each record as a spool file,
// staged in scratch and renamed into spoolDir the way producers are expected
// to.
func spoolSink(t *testing.T, scratch, spoolDir string) store.ChangeSink {
	t.Helper()
	var n int
	return func(key string, change []byte) {
		n++
		name := fmt.Sprintf("%s#%d.change", key, n)
		tmp := filepath.Join(scratch, name)
		require.NoError(t, os.WriteFile(tmp, change, 0o644))
		require.NoError(t, os.Rename(tmp, filepath.Join(spoolDir, name)))
	}
}

func TestPipeline_EditArchiveReplaySnapshot(t *testing.T) {
	scratch := t.TempDir()
	spoolDir := t.TempDir()
	workDir := t.TempDir()

	logDB, err := archive.OpenLog(filepath.Join(workDir, "archive.db"))
	require.NoError(t, err)
	defer func() { _ = logDB.Close() }()

	w, err := archive.WatchSpool(logDB, spoolDir, true)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	s := store.NewStore()
	s.SetChangeSink(spoolSink(t, scratch, spoolDir))
	s.New("session")

	require.NoError(t, s.PutText("session", "user.name", "Alice"))
	require.NoError(t, s.PutInt("session", "user.age", 30))
	require.NoError(t, s.CreateList("session", "events"))
	require.NoError(t, s.AppendText("session", "events", "joined"))
	require.NoError(t, s.AppendText("session", "events", "edited"))
	require.NoError(t, s.PutText("session", "greeting", "Hello World"))
	require.NoError(t, s.SpliceText("session", "greeting", 6, 5, "Redis"))

	var logged [][]byte
	require.Eventually(t, func() bool {
		logged, err = logDB.Changes("session")
		require.NoError(t, err)
		return len(logged) == 7
	}, 5*time.Second, 10*time.Millisecond)

	// Replay the log into a fresh replica.
	replica := doc.New()
	require.NoError(t, replica.ApplyChanges(logged))
	assert.Zero(t, replica.PendingCount())

	live, err := s.Get("session")
	require.NoError(t, err)
	assert.Equal(t, live.Materialize(), replica.Materialize())

	greeting, err := replica.GetText("greeting")
	require.NoError(t, err)
	assert.Equal(t, "Hello Redis", greeting)

	// Snapshot the replica and load it back through the store.
	snaps, err := snapshot.NewStore(osfs.New(workDir), "snapshots")
	require.NoError(t, err)
	require.NoError(t, snaps.Save("session", replica.Save()))

	data, err := snaps.Load("session")
	require.NoError(t, err)

	restored := store.NewStore()
	require.NoError(t, restored.Load("session", data))
	got, err := restored.GetText("session", "greeting")
	require.NoError(t, err)
	assert.Equal(t, "Hello Redis", got)

	rd, err := restored.Get("session")
	require.NoError(t, err)
	assert.Equal(t, live.Materialize(), rd.Materialize())
}

func TestPipeline_TwoWritersConvergeViaArchive(t *testing.T) {
	workDir := t.TempDir()
	logDB, err := archive.OpenLog(filepath.Join(workDir, "archive.db"))
	require.NoError(t, err)
	defer func() { _ = logDB.Close() }()

	appendSink := func(s *store.Store) {
		s.SetChangeSink(func(key string, change []byte) {
			_, err := logDB.Append(key, change)
			require.NoError(t, err)
		})
	}

	s1 := store.NewStore()
	s2 := store.NewStore()
	appendSink(s1)
	appendSink(s2)
	s1.New("shared")
	s2.New("shared")

	require.NoError(t, s1.PutText("shared", "left", "one"))
	require.NoError(t, s2.PutInt("shared", "right", 2))
	require.NoError(t, s1.PutBool("shared", "flags.done", true))

	logged, err := logDB.Changes("shared")
	require.NoError(t, err)
	require.Len(t, logged, 3)

	// Both writers catch up from the shared log; their own records are
	// skipped as duplicates.
	require.NoError(t, s1.Apply("shared", logged...))
	require.NoError(t, s2.Apply("shared", logged...))

	d1, err := s1.Get("shared")
	require.NoError(t, err)
	d2, err := s2.Get("shared")
	require.NoError(t, err)
	assert.Equal(t, d1.Materialize(), d2.Materialize())
	assert.Equal(t, map[string]any{
		"left":  "one",
		"right": int64(2),
		"flags": map[string]any{"done": true},
	}, d1.Materialize())
}
