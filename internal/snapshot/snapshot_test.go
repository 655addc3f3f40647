package snapshot

import (
	"errors"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mergedoc/mergedoc/api"
	"github.com/mergedoc/mergedoc/internal/doc"
)

func TestStore_SaveLoad(t *testing.T) {
	fs := memfs.New()
	s, err := NewStore(fs, "snaps")
	require.NoError(t, err)

	d := doc.New()
	require.NoError(t, d.PutText("t", "hello"))
	data := d.Save()

	require.NoError(t, s.Save("mydoc", data))
	got, err := s.Load("mydoc")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	reloaded, err := doc.Load(got)
	require.NoError(t, err)
	v, err := reloaded.GetText("t")
	require.NoError(t, err)
	assert.Equal(t, "hello", v)
}

func TestStore_SaveReplaces(t *testing.T) {
	s, err := NewStore(memfs.New(), "snaps")
	require.NoError(t, err)

	require.NoError(t, s.Save("k", []byte("v1")))
	require.NoError(t, s.Save("k", []byte("v2")))

	got, err := s.Load("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
}

func TestStore_LoadMissing(t *testing.T) {
	s, err := NewStore(memfs.New(), "snaps")
	require.NoError(t, err)

	_, err = s.Load("absent")
	assert.True(t, errors.Is(err, api.ErrNotFound))
}

func TestStore_Remove(t *testing.T) {
	s, err := NewStore(memfs.New(), "snaps")
	require.NoError(t, err)

	require.NoError(t, s.Save("k", []byte("v")))
	require.NoError(t, s.Remove("k"))

	_, err = s.Load("k")
	assert.True(t, errors.Is(err, api.ErrNotFound))

	require.NoError(t, s.Remove("k"), "removing an absent snapshot is a no-op")
}

func TestStore_EscapesHostileKeys(t *testing.T) {
	fs := memfs.New()
	s, err := NewStore(fs, "snaps")
	require.NoError(t, err)

	key := "../outside/evil"
	require.NoError(t, s.Save(key, []byte("v")))

	got, err := s.Load(key)
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	_, err = util.ReadFile(fs, "outside/evil.snap")
	assert.Error(t, err, "key must not escape the snapshot directory")
}

func TestStore_NoTempFilesLeftBehind(t *testing.T) {
	fs := memfs.New()
	s, err := NewStore(fs, "snaps")
	require.NoError(t, err)

	require.NoError(t, s.Save("a", []byte("1")))
	require.NoError(t, s.Save("b", []byte("2")))

	entries, err := fs.ReadDir("snaps")
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"a.snap", "b.snap"}, names)
}
