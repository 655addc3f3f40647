package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mergedoc/mergedoc/api"
)

func TestStore_CommandSurface(t *testing.T) {
	s := NewStore()
	s.New("doc1")

	require.NoError(t, s.PutText("doc1", "user.name", "Alice"))
	require.NoError(t, s.PutInt("doc1", "user.age", 30))
	require.NoError(t, s.PutDouble("doc1", "temp", 21.5))
	require.NoError(t, s.PutBool("doc1", "active", true))

	name, err := s.GetText("doc1", "user.name")
	require.NoError(t, err)
	assert.Equal(t, "Alice", name)

	age, err := s.GetInt("doc1", "user.age")
	require.NoError(t, err)
	assert.Equal(t, int64(30), age)

	temp, err := s.GetDouble("doc1", "temp")
	require.NoError(t, err)
	assert.Equal(t, 21.5, temp)

	active, err := s.GetBool("doc1", "active")
	require.NoError(t, err)
	assert.True(t, active)

	require.NoError(t, s.CreateList("doc1", "items"))
	require.NoError(t, s.AppendText("doc1", "items", "a"))
	require.NoError(t, s.AppendInt("doc1", "items", 2))
	require.NoError(t, s.AppendDouble("doc1", "items", 3.0))
	require.NoError(t, s.AppendBool("doc1", "items", false))

	n, err := s.ListLen("doc1", "items")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	require.NoError(t, s.SpliceText("doc1", "user.name", 0, 5, "Bob"))
	name, err = s.GetText("doc1", "user.name")
	require.NoError(t, err)
	assert.Equal(t, "Bob", name)

	require.NoError(t, s.PutDiff("doc1", "user.name", "@@ -1 +1 @@\n-Bob\n+Carol\n"))
	name, err = s.GetText("doc1", "user.name")
	require.NoError(t, err)
	assert.Equal(t, "Carol", name)
}

func TestStore_MissingKey(t *testing.T) {
	s := NewStore()

	assert.True(t, errors.Is(s.PutInt("nope", "x", 1), api.ErrNotFound))
	_, err := s.GetInt("nope", "x")
	assert.True(t, errors.Is(err, api.ErrNotFound))
	_, err = s.Save("nope")
	assert.True(t, errors.Is(err, api.ErrNotFound))
	assert.True(t, errors.Is(s.Apply("nope"), api.ErrNotFound))
	_, err = s.Get("nope")
	assert.True(t, errors.Is(err, api.ErrNotFound))
}

func TestStore_NewReplaces(t *testing.T) {
	s := NewStore()
	s.New("k")
	require.NoError(t, s.PutInt("k", "x", 1))

	s.New("k")
	_, err := s.GetInt("k", "x")
	assert.True(t, errors.Is(err, api.ErrNotFound), "New must start from scratch")
}

func TestStore_Delete(t *testing.T) {
	s := NewStore()
	s.New("k")
	require.NoError(t, s.PutInt("k", "x", 1))

	s.Delete("k")
	_, err := s.GetInt("k", "x")
	assert.True(t, errors.Is(err, api.ErrNotFound))

	s.Delete("k") // absent key is a no-op
}

func TestStore_SaveLoad(t *testing.T) {
	s := NewStore()
	s.New("k")
	require.NoError(t, s.PutText("k", "t", "hello"))

	snap, err := s.Save("k")
	require.NoError(t, err)

	other := NewStore()
	require.NoError(t, other.Load("k", snap))
	got, err := other.GetText("k", "t")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	assert.True(t, errors.Is(other.Load("k", []byte("junk")), api.ErrDecode))
	got, err = other.GetText("k", "t")
	require.NoError(t, err)
	assert.Equal(t, "hello", got, "failed load must leave the document intact")
}

func TestStore_SinkReceivesEveryMutation(t *testing.T) {
	s := NewStore()
	s.New("k")

	var keys []string
	var records [][]byte
	s.SetChangeSink(func(key string, change []byte) {
		keys = append(keys, key)
		records = append(records, change)
	})

	require.NoError(t, s.PutText("k", "t", "hi"))
	require.NoError(t, s.CreateList("k", "l"))
	require.NoError(t, s.AppendInt("k", "l", 1))
	require.NoError(t, s.SpliceText("k", "t", 2, 0, "!"))

	require.Len(t, records, 4)
	assert.Equal(t, []string{"k", "k", "k", "k"}, keys)

	// Failed mutations produce no record.
	assert.Error(t, s.PutInt("k", "t.deeper", 1))
	assert.Len(t, records, 4)

	// Mutations that commit nothing emit nothing.
	require.NoError(t, s.PutDiff("k", "t", "@@ -1 +1 @@\n hi!\n"))
	assert.Len(t, records, 4)

	require.NoError(t, s.PutDiff("k", "t", "@@ -1 +1 @@\n-hi!\n+bye!\n"))
	assert.Len(t, records, 5)
}

func TestStore_SinkFeedsReplica(t *testing.T) {
	primary := NewStore()
	replica := NewStore()
	primary.New("k")
	replica.New("k")

	primary.SetChangeSink(func(key string, change []byte) {
		require.NoError(t, replica.Apply(key, change))
	})

	require.NoError(t, primary.PutText("k", "greeting", "Hello World"))
	require.NoError(t, primary.SpliceText("k", "greeting", 6, 5, "Redis"))

	got, err := replica.GetText("k", "greeting")
	require.NoError(t, err)
	assert.Equal(t, "Hello Redis", got)

	pd, err := primary.Get("k")
	require.NoError(t, err)
	rd, err := replica.Get("k")
	require.NoError(t, err)
	assert.Equal(t, pd.Materialize(), rd.Materialize())
}
